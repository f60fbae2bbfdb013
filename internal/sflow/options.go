package sflow

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"sflowd/internal/sfl"
)

// Platform defaults. Each is overridable through Defaults.
const (
	DefaultSamplingRate    = 400
	DefaultPollingInterval = 30
	DefaultHeaderSize      = 128
	DefaultCollectorPort   = sfl.DefaultCollectorPort
	DefaultAgentIP         = "127.0.0.1"
)

const (
	ReceiverOwner           = "sflowd receiver"
	ReceiverTimeoutInfinite = 0xffffffff
	dataSourceIndexBase     = 1000
	ethernetFCSLength       = 4
	receiverIndex           = 1
)

// Defaults are the values applied when options leave a field unset.
type Defaults struct {
	SamplingRate    uint32
	PollingInterval uint32
	HeaderSize      uint32
	CollectorPort   uint32
	AgentIP         string
	DatagramSize    int
}

func (d Defaults) withFallbacks() Defaults {
	if d.SamplingRate == 0 {
		d.SamplingRate = DefaultSamplingRate
	}
	if d.PollingInterval == 0 {
		d.PollingInterval = DefaultPollingInterval
	}
	if d.HeaderSize == 0 {
		d.HeaderSize = DefaultHeaderSize
	}
	if d.CollectorPort == 0 {
		d.CollectorPort = DefaultCollectorPort
	}
	if d.AgentIP == "" {
		d.AgentIP = DefaultAgentIP
	}
	if d.DatagramSize == 0 {
		d.DatagramSize = sfl.DefaultDatagramSize
	}
	return d
}

// Options is the desired sampling configuration.
type Options struct {
	// Targets are collector addresses, "host" or "host:port".
	Targets         []string
	SamplingRate    uint32
	PollingInterval uint32
	HeaderLen       uint32
	ControlIP       string
	SubID           uint32
	AgentDevice     string
}

// Options returns options populated from the defaults.
func (d Defaults) Options() *Options {
	return &Options{
		SamplingRate:    d.SamplingRate,
		PollingInterval: d.PollingInterval,
		HeaderLen:       d.HeaderSize,
	}
}

// Clone returns a deep copy.
func (o *Options) Clone() *Options {
	c := *o
	c.Targets = slices.Clone(o.Targets)
	return &c
}

// Equal reports whether two options select the same targets, sampling rate
// and agent device.
func (o *Options) Equal(other *Options) bool {
	if o == nil || other == nil {
		return o == other
	}
	a, b := slices.Clone(o.Targets), slices.Clone(other.Targets)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b)) &&
		o.SamplingRate == other.SamplingRate &&
		o.AgentDevice == other.AgentDevice
}

// SplitTarget splits a collector target into host and port. A bare IPv6
// literal is returned whole with an empty port.
func SplitTarget(target string) (host, port string) {
	if h, p, err := net.SplitHostPort(target); err == nil {
		return h, p
	}
	return strings.TrimSuffix(strings.TrimPrefix(target, "["), "]"), ""
}

// ParseRate parses a 1-in-N sampling rate.
func ParseRate(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidRate, s)
	}
	return uint32(v), nil
}

// ParsePortScope parses a port id, or "global" for all ports.
func ParsePortScope(s string) (PortID, error) {
	if s == "global" {
		return GlobalPort, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidPort, s)
	}
	return PortID(v), nil
}
