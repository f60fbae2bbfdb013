// sflowd - sFlow agent for software-sampled switch ports
//
// Usage:
//
//	sflowd agent    - run the sFlow agent daemon
//	sflowd collect  - decode and log received sFlow datagrams
//	sflowd <verb>   - control a running agent
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"sflowd/cmd/agent"
	"sflowd/cmd/collect"
	"sflowd/cmd/ctl"
)

const (
	defaultSystemPath = "/etc/sflowd/sflowd.toml"
	defaultLocalPath  = "sflowd.toml"
	version           = "0.3.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath, args := extractConfigFlag(os.Args[1:])

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch {
	case subcommand == "agent":
		err = agent.Run(configPath)
	case subcommand == "collect":
		err = collect.Run(configPath)
	case subcommand == "edit":
		err = agent.EditConfig(configPath)
	case subcommand == "version":
		fmt.Printf("sflowd v%s\n", version)
		return
	case subcommand == "help", subcommand == "--help", subcommand == "-h":
		printUsage()
		return
	case ctl.IsVerb(subcommand):
		err = ctl.Run(configPath, subcommand, args[1:])
		if errors.Is(err, ctl.ErrUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// extractConfigFlag removes --config <path> or --config=<path> from args.
func extractConfigFlag(args []string) (string, []string) {
	var configPath string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return configPath, rest
}

func printUsage() {
	fmt.Printf(`sflowd v%s - sFlow agent for software-sampled switch ports

Usage:
  sflowd <command> [args] [--config <path>]

Commands:
  agent                                   Run the sFlow agent daemon
  collect                                 Decode and log sFlow datagrams (diagnostic collector)
  edit                                    Edit the configuration file in your system editor
  version                                 Print version information
  help                                    Show this help message

Control verbs (talk to a running agent):
  enable-agent yes|no                     Start or stop the sFlow agent
  set-rate <port-id|global> <ing> <egr>   Set 1-in-N sampling rates
  show-rate [port-id]                     Show sampling rates
  set-collector-ip <ip> [port]            Point the agent at a collector
  agent-interface add <ip> | delete       Set or reset the agent address
  status                                  Show agent status
  send-test-pkt <ip> [port]               Send a plain UDP "Hello" to a collector

Options:
  --config <path>  Path to config file (default: looks for ./sflowd.toml, then %s)

Examples:
  sflowd agent                            # Start the agent with default config
  sflowd set-rate global 4096 4096        # Sample 1 in 4096 frames on every port
  sflowd set-collector-ip 10.0.0.5 6343   # Send datagrams to 10.0.0.5:6343

`, version, defaultSystemPath)
}
