package sflow

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"sflowd/internal/sfl"
)

// Family is an address family.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// FamilyOf classifies an address literal: a colon means IPv6.
func FamilyOf(address string) Family {
	if strings.Contains(address, ":") {
		return FamilyIPv6
	}
	return FamilyIPv4
}

func parseAddr(address string, family Family) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w %q", ErrInvalidAddress, address)
	}
	if family == FamilyIPv4 && !addr.Is4() || family == FamilyIPv6 && !addr.Is6() {
		return netip.Addr{}, fmt.Errorf("%w %q: not an %s address", ErrInvalidAddress, address, family)
	}
	return addr, nil
}

// SetCollector points the receiver at address:port. An empty port selects
// the default collector port.
func (o *Orchestrator) SetCollector(address, port string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.agent == nil || o.receiver == nil {
		o.log.Error().Str("collector", address).Msg("sFlow agent uninitialized")
		return ErrNotRunning
	}
	return o.applyCollector(o.receiver, address, port)
}

func (o *Orchestrator) applyCollector(r *sfl.Receiver, address, port string) error {
	addr, err := parseAddr(address, FamilyOf(address))
	if err != nil {
		o.log.Error().Str("collector", address).Msg("Invalid collector IP")
		return err
	}

	portN := o.defaults.CollectorPort
	if port != "" {
		v, err := strconv.ParseUint(port, 10, 16)
		if err != nil || v == 0 {
			return fmt.Errorf("%w %q", ErrInvalidPort, port)
		}
		portN = uint32(v)
	}

	r.SetAddress(addr)
	r.SetPort(portN)
	o.log.Info().Str("collector", address).Uint32("port", portN).Msg("Set IP/port on receiver")
	return nil
}

// SetAgentAddress sets the source address advertised in datagrams. With set
// false the address is reset to the default agent address.
func (o *Orchestrator) SetAgentAddress(address string, family Family, set bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.agent == nil {
		o.log.Error().Msg("sFlow agent is not running, can't set agent address")
		return ErrNotRunning
	}

	if !set {
		address = o.defaults.AgentIP
		family = FamilyOf(address)
	}

	addr, err := parseAddr(address, family)
	if err != nil {
		o.log.Error().Str("address", address).Msg("Invalid interface address, failed to assign IP")
		return err
	}

	o.agent.SetAddress(addr)
	o.log.Info().Str("address", address).Msg("Set sFlow agent address")
	return nil
}
