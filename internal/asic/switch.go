// Package asic is a software switch that stands in for sampling hardware. It
// keeps per-port ingress and egress rate registers, persists them, and when
// capture is enabled samples frames from the host interfaces with AF_PACKET
// sockets.
package asic

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"

	"sflowd/internal/sflow"
	"sflowd/internal/store"
)

const (
	DefaultSnapLen = 256
	fcsLength      = 4
)

var (
	ErrUnknownPort   = errors.New("unknown port")
	ErrUnknownFilter = errors.New("unknown sample filter")
	ErrNoPorts       = errors.New("no switch ports")
)

// Config selects the ports and capture behaviour of a Switch.
type Config struct {
	// Ports are interface names. Empty means every non-loopback interface.
	Ports   []string
	Capture bool
	SnapLen int
}

// Sink consumes sampled packets.
type Sink interface {
	SubmitSampledPacket(pkt *sflow.Packet)
}

type sinkRef struct{ Sink }

type port struct {
	id      sflow.PortID
	name    string
	ingress atomic.Uint32
	egress  atomic.Uint32
}

func (p *port) rate(dir sflow.FilterDirection) uint32 {
	if dir == sflow.FilterDestination {
		return p.egress.Load()
	}
	return p.ingress.Load()
}

type filter struct {
	dir  sflow.FilterDirection
	stop chan struct{}
	wg   sync.WaitGroup
}

// Switch implements sflow.HardwareAdapter.
type Switch struct {
	cfg   Config
	store *store.Store
	log   zerolog.Logger
	ports []*port
	sink  atomic.Pointer[sinkRef]

	mu      sync.Mutex
	filters map[sflow.FilterToken]*filter
	next    sflow.FilterToken
}

var _ sflow.HardwareAdapter = (*Switch)(nil)

// New builds a Switch and restores the persisted rate registers. db may be
// nil, in which case registers are not persisted.
func New(cfg Config, db *store.Store, log zerolog.Logger) (*Switch, error) {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = DefaultSnapLen
	}
	log = log.With().Str("component", "asic").Logger()

	names := cfg.Ports
	if len(names) == 0 {
		var err error
		names, err = hostInterfaces()
		if err != nil {
			return nil, fmt.Errorf("enumerating interfaces: %w", err)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoPorts
	}

	s := &Switch{
		cfg:     cfg,
		store:   db,
		log:     log,
		filters: make(map[sflow.FilterToken]*filter),
	}
	for i, name := range names {
		p := &port{id: sflow.PortID(i + 1), name: name}
		s.ports = append(s.ports, p)
		log.Debug().Uint32("port", uint32(p.id)).Str("interface", name).Msg("Port mapped")
	}

	if err := s.restore(); err != nil {
		return nil, err
	}
	return s, nil
}

// hostInterfaces lists non-loopback interfaces ordered by ifindex.
func hostInterfaces() ([]string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ifaces, func(a, b psnet.InterfaceStat) int { return a.Index - b.Index })

	var names []string
	for _, iface := range ifaces {
		if slices.Contains(iface.Flags, "loopback") {
			continue
		}
		names = append(names, iface.Name)
	}
	return names, nil
}

func (s *Switch) restore() error {
	if s.store == nil {
		return nil
	}
	regs, err := s.store.PortRates()
	if err != nil {
		return fmt.Errorf("loading rate registers: %w", err)
	}

	known := make([]uint32, 0, len(s.ports))
	for _, p := range s.ports {
		known = append(known, uint32(p.id))
		if r, ok := regs[uint32(p.id)]; ok {
			p.ingress.Store(r.Ingress)
			p.egress.Store(r.Egress)
			s.log.Debug().
				Str("interface", p.name).
				Uint32("ingress", r.Ingress).
				Uint32("egress", r.Egress).
				Msg("Restored rate registers")
		}
	}
	if _, err := s.store.PruneUnknownPorts(known); err != nil {
		return err
	}
	return nil
}

func (s *Switch) port(id sflow.PortID) (*port, error) {
	if id == sflow.GlobalPort || int(id) > len(s.ports) {
		return nil, fmt.Errorf("%w %d", ErrUnknownPort, id)
	}
	return s.ports[id-1], nil
}

// SetSink attaches the consumer of sampled packets.
func (s *Switch) SetSink(sink Sink) {
	s.sink.Store(&sinkRef{sink})
}

// PortName returns the interface behind a port, or "" if there is none.
func (s *Switch) PortName(id sflow.PortID) string {
	p, err := s.port(id)
	if err != nil {
		return ""
	}
	return p.name
}

// EnumeratePorts returns every port id in order.
func (s *Switch) EnumeratePorts() ([]sflow.PortID, error) {
	ids := make([]sflow.PortID, len(s.ports))
	for i, p := range s.ports {
		ids[i] = p.id
	}
	return ids, nil
}

// SetPortSamplingRate programs and persists the rate registers of a port.
func (s *Switch) SetPortSamplingRate(id sflow.PortID, ingress, egress uint32) error {
	p, err := s.port(id)
	if err != nil {
		return err
	}
	p.ingress.Store(ingress)
	p.egress.Store(egress)

	if s.store != nil {
		if err := s.store.PutPortRate(uint32(id), ingress, egress); err != nil {
			return fmt.Errorf("persisting rate registers: %w", err)
		}
	}
	return nil
}

// PortSamplingRate reads the rate registers of a port.
func (s *Switch) PortSamplingRate(id sflow.PortID) (uint32, uint32, error) {
	p, err := s.port(id)
	if err != nil {
		return 0, 0, err
	}
	return p.ingress.Load(), p.egress.Load(), nil
}

// InstallSampleFilter starts sampling in one direction on every port.
func (s *Switch) InstallSampleFilter(dir sflow.FilterDirection) (sflow.FilterToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := &filter{dir: dir, stop: make(chan struct{})}
	if s.cfg.Capture {
		if err := s.startCapture(f); err != nil {
			return 0, err
		}
	}

	s.next++
	s.filters[s.next] = f
	s.log.Info().Int("token", int(s.next)).Stringer("direction", dir).Bool("capture", s.cfg.Capture).Msg("Sample filter installed")
	return s.next, nil
}

// RemoveSampleFilter stops a filter and waits for its readers to exit.
func (s *Switch) RemoveSampleFilter(tok sflow.FilterToken) error {
	s.mu.Lock()
	f, ok := s.filters[tok]
	delete(s.filters, tok)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownFilter, tok)
	}
	close(f.stop)
	f.wg.Wait()
	s.log.Info().Int("token", int(tok)).Stringer("direction", f.dir).Msg("Sample filter removed")
	return nil
}

// Close removes every installed filter.
func (s *Switch) Close() error {
	s.mu.Lock()
	toks := make([]sflow.FilterToken, 0, len(s.filters))
	for tok := range s.filters {
		toks = append(toks, tok)
	}
	s.mu.Unlock()

	var errs []error
	for _, tok := range toks {
		errs = append(errs, s.RemoveSampleFilter(tok))
	}
	return errors.Join(errs...)
}
