// Package sfl encodes sFlow version 5 datagrams for a single agent.
//
// The types mirror the sFlow agent model: an Agent owns Receivers (collector
// endpoints) and Samplers (data sources). Samplers turn flow samples into
// encoded records which are batched by the bound Receiver and shipped through
// a Sender once a datagram is full or on Tick. None of the types are safe for
// concurrent use; callers serialize access.
package sfl

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	// DefaultDatagramSize bounds an encoded datagram.
	DefaultDatagramSize = 1400

	minDatagramSize = 200
	version         = 5
)

var (
	ErrReleased     = errors.New("agent released")
	ErrNoReceiver   = errors.New("receiver not configured")
	ErrNoAddress    = errors.New("receiver address not set")
	ErrSampleTooBig = errors.New("flow sample exceeds datagram size")
)

// Hooks is the capability set the agent needs from its owner: buffer
// allocation and error reporting.
type Hooks interface {
	Alloc(size int) []byte
	Free(buf []byte)
	Error(err error)
}

// Sender ships an encoded datagram to a collector.
type Sender interface {
	Send(dst netip.AddrPort, datagram []byte) error
}

// AgentConfig holds the values an agent is initialized with.
type AgentConfig struct {
	Address      netip.Addr
	SubID        uint32
	BootTime     time.Time
	Now          time.Time
	DatagramSize int
}

// Agent is an sFlow agent session.
type Agent struct {
	addr         netip.Addr
	subID        uint32
	bootTime     time.Time
	now          time.Time
	datagramSize int

	hooks  Hooks
	sender Sender

	receivers []*Receiver
	samplers  []*Sampler
	released  bool
}

// NewAgent initializes an agent session.
func NewAgent(cfg AgentConfig, hooks Hooks, sender Sender) (*Agent, error) {
	if sender == nil {
		return nil, fmt.Errorf("agent needs a sender")
	}
	size := cfg.DatagramSize
	if size == 0 {
		size = DefaultDatagramSize
	}
	if size < minDatagramSize {
		return nil, fmt.Errorf("datagram size %d below minimum %d", size, minDatagramSize)
	}
	if hooks == nil {
		hooks = heapHooks{}
	}
	now := cfg.Now
	if now.IsZero() {
		now = cfg.BootTime
	}
	return &Agent{
		addr:         cfg.Address,
		subID:        cfg.SubID,
		bootTime:     cfg.BootTime,
		now:          now,
		datagramSize: size,
		hooks:        hooks,
		sender:       sender,
	}, nil
}

// SetAddress sets the agent address advertised in datagram headers.
func (a *Agent) SetAddress(addr netip.Addr) { a.addr = addr }

// Address returns the advertised agent address.
func (a *Agent) Address() netip.Addr { return a.addr }

// SubID returns the sub-agent id.
func (a *Agent) SubID() uint32 { return a.subID }

// BootTime returns the time the agent was initialized with.
func (a *Agent) BootTime() time.Time { return a.bootTime }

// Now returns the agent's current time, as last set by Tick.
func (a *Agent) Now() time.Time { return a.now }

func (a *Agent) uptime() uint32 {
	return uint32(a.now.Sub(a.bootTime).Milliseconds())
}

// AddReceiver appends a receiver. Receivers are indexed from 1 in the order
// they are added.
func (a *Agent) AddReceiver() *Receiver {
	r := &Receiver{agent: a}
	a.receivers = append(a.receivers, r)
	return r
}

// Receiver returns the receiver with the given 1-based index, or nil.
func (a *Agent) Receiver(index uint32) *Receiver {
	if index == 0 || int(index) > len(a.receivers) {
		return nil
	}
	return a.receivers[index-1]
}

// AddSampler appends a sampler for the data source.
func (a *Agent) AddSampler(ds DataSource) *Sampler {
	s := &Sampler{agent: a, ds: ds}
	a.samplers = append(a.samplers, s)
	return s
}

// Sampler returns the sampler with the given 1-based index, or nil.
func (a *Agent) Sampler(index int) *Sampler {
	if index < 1 || index > len(a.samplers) {
		return nil
	}
	return a.samplers[index-1]
}

// Tick advances the agent clock and flushes every receiver with pending
// samples.
func (a *Agent) Tick(now time.Time) {
	if a.released {
		return
	}
	a.now = now
	for _, r := range a.receivers {
		if err := r.Flush(); err != nil {
			a.hooks.Error(err)
		}
	}
}

// Release flushes pending samples and tears down all receivers and samplers.
// The agent and its children must not be used afterwards.
func (a *Agent) Release() error {
	if a.released {
		return ErrReleased
	}
	var errs []error
	for _, r := range a.receivers {
		if err := r.Flush(); err != nil {
			errs = append(errs, err)
		}
		r.free()
	}
	a.receivers = nil
	a.samplers = nil
	a.released = true
	return errors.Join(errs...)
}

type heapHooks struct{}

func (heapHooks) Alloc(size int) []byte { return make([]byte, 0, size) }
func (heapHooks) Free([]byte)           {}
func (heapHooks) Error(error)           {}
