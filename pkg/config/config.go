// Package config provides TOML configuration loading for sflowd.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"sflowd/internal/asic"
	"sflowd/internal/sfl"
	"sflowd/internal/sflow"
)

// Config is the top-level configuration structure.
type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	Hardware HardwareConfig `toml:"hardware"`
	Collect  CollectConfig  `toml:"collect"`
}

// AgentConfig holds settings for the sFlow agent daemon.
type AgentConfig struct {
	SubID           uint32   `toml:"sub_id"`
	AgentIP         string   `toml:"agent_ip"`
	AgentInterface  string   `toml:"agent_interface"`
	SamplingRate    uint32   `toml:"sampling_rate"`
	PollingInterval uint32   `toml:"polling_interval"`
	HeaderLen       uint32   `toml:"header_len"`
	DatagramSize    int      `toml:"datagram_size"`
	Collectors      []string `toml:"collectors"`
	ControlIP       string   `toml:"control_ip"`
	EnableOnStart   *bool    `toml:"enable_on_start"`
	FlushInterval   string   `toml:"flush_interval"`
	TOS             int      `toml:"tos"`
	RPCSocket       string   `toml:"rpc_socket"`
	DBPath          string   `toml:"db_path"`
	MetricsAddr     string   `toml:"metrics_addr"`
	LogLevel        string   `toml:"log_level"`
}

// HardwareConfig selects the switch ports and capture behaviour.
type HardwareConfig struct {
	Ports   []string `toml:"ports"`
	Capture bool     `toml:"capture"`
	SnapLen int      `toml:"snap_len"`
}

// CollectConfig holds settings for the diagnostic collector.
type CollectConfig struct {
	Listen string `toml:"listen"`
}

// ParseFlushInterval parses the datagram flush interval.
func (a *AgentConfig) ParseFlushInterval() (time.Duration, error) {
	if a.FlushInterval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(a.FlushInterval)
}

// StartEnabled reports whether the agent is enabled at daemon start.
func (a *AgentConfig) StartEnabled() bool {
	return a.EnableOnStart == nil || *a.EnableOnStart
}

// Defaults returns the orchestrator defaults derived from the agent section.
func (a *AgentConfig) Defaults() sflow.Defaults {
	return sflow.Defaults{
		SamplingRate:    a.SamplingRate,
		PollingInterval: a.PollingInterval,
		HeaderSize:      a.HeaderLen,
		AgentIP:         a.AgentIP,
		DatagramSize:    a.DatagramSize,
	}
}

// Options returns the sampling options the daemon enables the agent with.
func (a *AgentConfig) Options() *sflow.Options {
	return &sflow.Options{
		Targets:         append([]string(nil), a.Collectors...),
		SamplingRate:    a.SamplingRate,
		PollingInterval: a.PollingInterval,
		HeaderLen:       a.HeaderLen,
		ControlIP:       a.ControlIP,
		SubID:           a.SubID,
		AgentDevice:     a.AgentInterface,
	}
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair.
func (cfg *Config) Validate() error {
	a := &cfg.Agent

	addr, err := netip.ParseAddr(a.AgentIP)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("agent_ip %q is not an IPv4 address", a.AgentIP)
	}

	for _, target := range a.Collectors {
		host, port := sflow.SplitTarget(target)
		if _, err := netip.ParseAddr(host); err != nil {
			return fmt.Errorf("collector %q: invalid address", target)
		}
		if port != "" {
			if v, err := strconv.ParseUint(port, 10, 16); err != nil || v == 0 {
				return fmt.Errorf("collector %q: invalid port", target)
			}
		}
	}

	if a.DatagramSize < 200 || a.DatagramSize > 65507 {
		return fmt.Errorf("datagram_size %d out of range 200-65507", a.DatagramSize)
	}
	if int(a.HeaderLen) > a.DatagramSize/2 {
		return fmt.Errorf("header_len %d too large for datagram_size %d", a.HeaderLen, a.DatagramSize)
	}
	if a.TOS < 0 || a.TOS > 255 {
		return fmt.Errorf("tos %d out of range 0-255", a.TOS)
	}
	if d, err := a.ParseFlushInterval(); err != nil || d <= 0 {
		return fmt.Errorf("flush_interval %q is not a positive duration", a.FlushInterval)
	}
	switch a.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", a.LogLevel)
	}

	if cfg.Hardware.SnapLen < 64 {
		return fmt.Errorf("snap_len %d below 64", cfg.Hardware.SnapLen)
	}
	return nil
}

func (cfg *Config) expandPaths() {
	cfg.Agent.DBPath = ExpandPath(cfg.Agent.DBPath)
	cfg.Agent.RPCSocket = ExpandPath(cfg.Agent.RPCSocket)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Agent defaults
	if cfg.Agent.AgentIP == "" {
		cfg.Agent.AgentIP = sflow.DefaultAgentIP
	}
	if cfg.Agent.SamplingRate == 0 {
		cfg.Agent.SamplingRate = sflow.DefaultSamplingRate
	}
	if cfg.Agent.PollingInterval == 0 {
		cfg.Agent.PollingInterval = sflow.DefaultPollingInterval
	}
	if cfg.Agent.HeaderLen == 0 {
		cfg.Agent.HeaderLen = sflow.DefaultHeaderSize
	}
	if cfg.Agent.DatagramSize == 0 {
		cfg.Agent.DatagramSize = sfl.DefaultDatagramSize
	}
	if cfg.Agent.FlushInterval == "" {
		cfg.Agent.FlushInterval = "1s"
	}
	if cfg.Agent.RPCSocket == "" {
		cfg.Agent.RPCSocket = "/run/sflowd/sflowd.sock"
	}
	if cfg.Agent.DBPath == "" {
		cfg.Agent.DBPath = "/var/lib/sflowd/asic.db"
	}
	if cfg.Agent.LogLevel == "" {
		cfg.Agent.LogLevel = "info"
	}

	// Hardware defaults
	if cfg.Hardware.SnapLen == 0 {
		cfg.Hardware.SnapLen = asic.DefaultSnapLen
	}

	// Collect defaults
	if cfg.Collect.Listen == "" {
		cfg.Collect.Listen = ":" + strconv.Itoa(sfl.DefaultCollectorPort)
	}
}
