// Package ctl implements the sflowd control verbs. Each verb is one call to
// the running agent over its RPC socket.
package ctl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/term"

	"sflowd/internal/rpc"
	"sflowd/internal/sfl"
	"sflowd/internal/sflow"
	"sflowd/pkg/config"
)

// ErrUsage reports malformed verb arguments.
var ErrUsage = errors.New("invalid arguments")

// Verbs lists the control verbs in usage order.
var Verbs = []string{
	"enable-agent",
	"set-rate",
	"show-rate",
	"set-collector-ip",
	"agent-interface",
	"status",
	"send-test-pkt",
}

// IsVerb reports whether name is a control verb.
func IsVerb(name string) bool {
	return slices.Contains(Verbs, name)
}

// Controller is the agent control surface a verb talks to.
type Controller interface {
	EnableAgent(enable bool) (bool, error)
	SetRate(port sflow.PortID, ingress, egress uint32) error
	ShowRate(port sflow.PortID) ([]rpc.RateRow, error)
	SetCollector(address, port string) error
	AgentInterface(add bool, address string) error
	Status() (sflow.Status, error)
}

// Run executes one verb against the agent configured in configPath.
func Run(configPath, verb string, args []string) error {
	if verb == "send-test-pkt" {
		return sendTestPacket(os.Stdout, args)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := rpc.NewClient(cfg.Agent.RPCSocket)
	if err != nil {
		return fmt.Errorf("connecting to agent: %w\nIs 'sflowd agent' running?", err)
	}
	defer client.Close()

	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	return Exec(client, os.Stdout, pretty, verb, args)
}

// Exec parses args for verb and runs it against c. Argument errors are
// reported before c is called.
func Exec(c Controller, out io.Writer, pretty bool, verb string, args []string) error {
	switch verb {
	case "enable-agent":
		if len(args) != 1 || (args[0] != "yes" && args[0] != "no") {
			return fmt.Errorf("%w: enable-agent yes|no", ErrUsage)
		}
		changed, err := c.EnableAgent(args[0] == "yes")
		if err != nil {
			return err
		}
		state := "enabled"
		if args[0] == "no" {
			state = "disabled"
		}
		if changed {
			fmt.Fprintf(out, "sFlow agent %s\n", state)
		} else {
			fmt.Fprintf(out, "sFlow agent already %s\n", state)
		}
		return nil

	case "set-rate":
		if len(args) != 3 {
			return fmt.Errorf("%w: set-rate <port-id|global> <ingress> <egress>", ErrUsage)
		}
		port, err := sflow.ParsePortScope(args[0])
		if err != nil {
			return err
		}
		ingress, err := sflow.ParseRate(args[1])
		if err != nil {
			return err
		}
		egress, err := sflow.ParseRate(args[2])
		if err != nil {
			return err
		}
		return c.SetRate(port, ingress, egress)

	case "show-rate":
		if len(args) > 1 {
			return fmt.Errorf("%w: show-rate [port-id]", ErrUsage)
		}
		port := sflow.GlobalPort
		if len(args) == 1 {
			var err error
			if port, err = sflow.ParsePortScope(args[0]); err != nil {
				return err
			}
		}
		rows, err := c.ShowRate(port)
		printRates(out, pretty, rows)
		return err

	case "set-collector-ip":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: set-collector-ip <ip> [port]", ErrUsage)
		}
		var port string
		if len(args) == 2 {
			port = args[1]
		}
		return c.SetCollector(args[0], port)

	case "agent-interface":
		switch {
		case len(args) == 2 && args[0] == "add":
			return c.AgentInterface(true, args[1])
		case len(args) == 1 && args[0] == "delete":
			return c.AgentInterface(false, "")
		}
		return fmt.Errorf("%w: agent-interface add <ip> | delete", ErrUsage)

	case "status":
		if len(args) != 0 {
			return fmt.Errorf("%w: status takes no arguments", ErrUsage)
		}
		st, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(out, st)
		return nil
	}
	return fmt.Errorf("%w: unknown verb %q", ErrUsage, verb)
}

func printRates(out io.Writer, pretty bool, rows []rpc.RateRow) {
	if !pretty {
		for _, r := range rows {
			fmt.Fprintf(out, "%d\t%s\t%d\t%d\n", r.Port, r.Name, r.Ingress, r.Egress)
		}
		return
	}

	fmt.Fprintf(out, "  %-6s %-16s %-12s %-12s\n", "Port", "Interface", "Ingress", "Egress")
	fmt.Fprintf(out, "  %s %s %s %s\n",
		strings.Repeat("─", 6),
		strings.Repeat("─", 16),
		strings.Repeat("─", 12),
		strings.Repeat("─", 12))
	for _, r := range rows {
		fmt.Fprintf(out, "  %-6d %-16s %-12s %-12s\n", r.Port, truncate(r.Name, 16), rateString(r.Ingress), rateString(r.Egress))
	}
}

func rateString(rate uint32) string {
	if rate == 0 {
		return "off"
	}
	return "1/" + strconv.FormatUint(uint64(rate), 10)
}

func printStatus(out io.Writer, st sflow.Status) {
	state := "disabled"
	if st.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(out, "Agent:          %s\n", state)
	if st.Enabled {
		collector := st.Collector
		if collector == "" {
			collector = "(none)"
		}
		fmt.Fprintf(out, "Agent address:  %s\n", st.AgentAddress)
		fmt.Fprintf(out, "Sub-agent id:   %d\n", st.SubID)
		fmt.Fprintf(out, "Collector:      %s\n", collector)
		fmt.Fprintf(out, "Sampling rate:  %d\n", st.SamplingRate)
		fmt.Fprintf(out, "Max header:     %d\n", st.MaxHeaderSize)
	}
	if len(st.Options.Targets) > 0 {
		fmt.Fprintf(out, "Targets:        %s\n", strings.Join(st.Options.Targets, ", "))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

// sendTestPacket sends a plain "Hello" datagram to check collector
// reachability without going through the agent.
func sendTestPacket(out io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: send-test-pkt <ip> [port]", ErrUsage)
	}
	port := strconv.Itoa(sfl.DefaultCollectorPort)
	if len(args) == 2 {
		port = args[1]
	}
	if ip := net.ParseIP(args[0]); ip == nil {
		return fmt.Errorf("%w %q", sflow.ErrInvalidAddress, args[0])
	}

	dst := net.JoinHostPort(args[0], port)
	conn, err := net.Dial("udp", dst)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", dst, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("Hello")); err != nil {
		return fmt.Errorf("sending test packet to %s: %w", dst, err)
	}
	fmt.Fprintf(out, "Sent test packet to %s\n", dst)
	return nil
}
