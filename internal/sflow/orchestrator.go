// Package sflow owns the sFlow agent lifecycle: it builds the agent, its
// single sampler and receiver, keeps hardware sampling rates in step with the
// sampler, and feeds hardware-sampled packets into the encoder.
//
// Every operation that touches the agent is serialized by one mutex owned by
// the Orchestrator. The capture path checks a lock-free liveness flag first so
// packets arriving while the agent is down never contend with configuration.
package sflow

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sflowd/internal/metrics"
	"sflowd/internal/sfl"
)

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Defaults Defaults
	Hardware HardwareAdapter
	Sender   sfl.Sender
	Metrics  *metrics.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
	// ResolveDevice maps Options.AgentDevice to the address advertised as
	// the agent. Nil disables the lookup.
	ResolveDevice func(name string) (netip.Addr, error)
}

// Orchestrator is the sFlow agent context. Create it with New.
type Orchestrator struct {
	defaults Defaults
	hw       HardwareAdapter
	sender   sfl.Sender
	metrics  *metrics.Metrics
	clock    func() time.Time
	resolve  func(string) (netip.Addr, error)
	hooks    *agentHooks
	log      zerolog.Logger
	hotLog   zerolog.Logger

	live atomic.Bool

	mu        sync.Mutex
	opts      *Options
	agent     *sfl.Agent
	sampler   *sfl.Sampler
	receiver  *sfl.Receiver
	srcFilter FilterToken
	dstFilter FilterToken
}

// Status is a snapshot of the agent state.
type Status struct {
	Enabled       bool
	AgentAddress  string
	SubID         uint32
	Collector     string
	SamplingRate  uint32
	MaxHeaderSize uint32
	Options       Options
}

// New creates an Orchestrator. The agent is not started until Enable.
func New(cfg Config, log zerolog.Logger) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log = log.With().Str("component", "sflow").Logger()
	o := &Orchestrator{
		defaults: cfg.Defaults.withFallbacks(),
		hw:       cfg.Hardware,
		sender:   cfg.Sender,
		metrics:  cfg.Metrics,
		clock:    clock,
		resolve:  cfg.ResolveDevice,
		log:      log,
		hotLog:   log.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second}),
	}
	o.hooks = newAgentHooks(o.defaults.DatagramSize, o.metrics, o.hotLog)
	return o
}

// Enabled reports whether an agent is live.
func (o *Orchestrator) Enabled() bool { return o.live.Load() }

// Options returns a copy of the stored options, or nil if none are stored.
func (o *Orchestrator) Options() *Options {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opts == nil {
		return nil
	}
	return o.opts.Clone()
}

// Enable starts the sFlow agent. A non-nil opts replaces the stored options,
// except that a zero SamplingRate keeps the stored rate. A nil opts reuses the
// stored options, or the defaults when none are stored. Options are stored
// only when the agent starts. Enabling a live agent changes nothing and
// returns false.
func (o *Orchestrator) Enable(opts *Options) (bool, error) {
	o.mu.Lock()

	if o.agent != nil {
		o.mu.Unlock()
		o.log.Info().Msg("sFlow agent already enabled, nothing to do")
		return false, nil
	}
	next := o.nextOptions(opts)

	stale, err := o.start(next)
	if err != nil {
		o.mu.Unlock()
		o.removeFilters(stale, "rollback")
		return false, err
	}

	o.opts = next
	o.live.Store(true)
	if o.metrics != nil {
		o.metrics.AgentEnabled.Set(1)
	}
	o.log.Info().
		Str("agent_ip", o.agent.Address().String()).
		Uint32("sub_id", o.agent.SubID()).
		Uint32("sampling_rate", o.sampler.SamplingRate()).
		Str("collector", collectorString(o.receiver)).
		Msg("sFlow agent enabled")
	o.mu.Unlock()
	return true, nil
}

// nextOptions resolves the options an Enable call runs with.
func (o *Orchestrator) nextOptions(opts *Options) *Options {
	switch {
	case opts != nil:
		next := opts.Clone()
		if next.SamplingRate == 0 && o.opts != nil {
			next.SamplingRate = o.opts.SamplingRate
		}
		return next
	case o.opts != nil:
		return o.opts.Clone()
	default:
		return o.defaults.Options()
	}
}

// start builds every handle into locals and commits them only once all steps
// have succeeded. On failure the agent is released and the filters already
// installed are returned for the caller to remove once the lock is dropped.
func (o *Orchestrator) start(opts *Options) (stale []FilterToken, err error) {
	now := o.clock()

	addr, perr := netip.ParseAddr(o.defaults.AgentIP)
	if perr != nil || !addr.Is4() {
		o.log.Warn().Str("agent_ip", o.defaults.AgentIP).Msg("Invalid agent source IP, using 0.0.0.0")
		addr = netip.IPv4Unspecified()
	}
	if dev := opts.AgentDevice; dev != "" && o.resolve != nil {
		if devAddr, rerr := o.resolve(dev); rerr != nil {
			o.log.Warn().Err(rerr).Str("interface", dev).Msg("Cannot resolve agent interface, keeping agent_ip")
		} else {
			addr = devAddr.Unmap()
		}
	}

	agent, err := sfl.NewAgent(sfl.AgentConfig{
		Address:      addr,
		SubID:        opts.SubID,
		BootTime:     now,
		Now:          now,
		DatagramSize: o.defaults.DatagramSize,
	}, o.hooks, o.sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	installed := make([]FilterToken, 0, 2)
	defer func() {
		if err == nil {
			return
		}
		stale = installed
		if rerr := agent.Release(); rerr != nil {
			o.log.Warn().Err(rerr).Msg("Failed to release agent during rollback")
		}
	}()

	receiver := agent.AddReceiver()
	receiver.SetOwner(ReceiverOwner)
	receiver.SetTimeout(ReceiverTimeoutInfinite)

	// Single receiver: the last target wins.
	for _, target := range opts.Targets {
		host, port := SplitTarget(target)
		if err := o.applyCollector(receiver, host, port); err != nil {
			return nil, fmt.Errorf("collector target %q: %w", target, err)
		}
	}

	sampler := agent.AddSampler(sfl.DataSource{
		Class: sfl.DSClassPhysicalEntity,
		Index: dataSourceIndexBase + opts.SubID,
	})
	rate := opts.SamplingRate
	if rate == 0 {
		rate = o.defaults.SamplingRate
	}
	sampler.SetSamplingRate(rate)
	if err := o.setHardwareRate(GlobalPort, rate, rate); err != nil {
		return nil, err
	}
	sampler.SetMaxHeaderSize(o.defaults.HeaderSize)
	sampler.SetReceiver(receiverIndex)

	for _, dir := range []FilterDirection{FilterSource, FilterDestination} {
		tok, err := o.hw.InstallSampleFilter(dir)
		if err != nil {
			return nil, &AdapterError{Op: fmt.Sprintf("installing %s sample filter", dir), Err: err}
		}
		installed = append(installed, tok)
	}

	o.agent = agent
	o.receiver = receiver
	o.sampler = sampler
	o.srcFilter, o.dstFilter = installed[0], installed[1]
	return nil, nil
}

// Disable stops the agent and removes the capture filters. It reports whether
// a live agent was torn down; disabling when no agent is live is a no-op.
//
// Filter removal waits for the capture readers, which may be blocked in
// SubmitSampledPacket on o.mu, so it runs after the lock is released.
func (o *Orchestrator) Disable() (bool, error) {
	o.mu.Lock()
	if o.agent == nil {
		o.mu.Unlock()
		return false, nil
	}
	o.live.Store(false)

	if err := o.agent.Release(); err != nil {
		o.log.Warn().Err(err).Msg("Failed to flush pending samples on release")
	}
	filters := []FilterToken{o.srcFilter, o.dstFilter}
	o.agent, o.sampler, o.receiver = nil, nil, nil
	o.srcFilter, o.dstFilter = 0, 0
	if o.metrics != nil {
		o.metrics.AgentEnabled.Set(0)
	}
	o.mu.Unlock()

	o.removeFilters(filters, "disable")
	o.log.Info().Msg("sFlow agent disabled")
	return true, nil
}

// removeFilters must be called without o.mu held.
func (o *Orchestrator) removeFilters(filters []FilterToken, stage string) {
	for _, tok := range filters {
		if err := o.hw.RemoveSampleFilter(tok); err != nil {
			o.log.Warn().Err(err).Int("token", int(tok)).Str("stage", stage).Msg("Failed to remove sflow sample filter")
		}
	}
}

// Tick advances the agent clock and flushes the pending datagram.
func (o *Orchestrator) Tick() {
	if !o.live.Load() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.agent != nil {
		o.agent.Tick(o.clock())
	}
}

// Status returns a snapshot of the agent state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	var st Status
	if o.opts != nil {
		st.Options = *o.opts.Clone()
	}
	if o.agent == nil {
		return st
	}
	st.Enabled = true
	st.AgentAddress = o.agent.Address().String()
	st.SubID = o.agent.SubID()
	st.Collector = collectorString(o.receiver)
	st.SamplingRate = o.sampler.SamplingRate()
	st.MaxHeaderSize = o.sampler.MaxHeaderSize()
	return st
}

func collectorString(r *sfl.Receiver) string {
	if r == nil || !r.Address().IsValid() {
		return ""
	}
	return netip.AddrPortFrom(r.Address(), uint16(r.Port())).String()
}

// agentHooks gives the encoder pooled datagram buffers and routes its errors
// to the log.
type agentHooks struct {
	pool    sync.Pool
	size    int
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newAgentHooks(size int, m *metrics.Metrics, log zerolog.Logger) *agentHooks {
	h := &agentHooks{size: size, metrics: m, log: log}
	h.pool.New = func() any {
		b := make([]byte, 0, size)
		return &b
	}
	return h
}

func (h *agentHooks) Alloc(size int) []byte {
	if size > h.size {
		return make([]byte, 0, size)
	}
	return (*h.pool.Get().(*[]byte))[:0]
}

func (h *agentHooks) Free(buf []byte) {
	if cap(buf) != h.size {
		return
	}
	buf = buf[:0]
	h.pool.Put(&buf)
}

func (h *agentHooks) Error(err error) {
	if h.metrics != nil {
		h.metrics.EncoderErrors.Inc()
	}
	lvl := zerolog.ErrorLevel
	if errors.Is(err, sfl.ErrNoAddress) {
		lvl = zerolog.WarnLevel
	}
	h.log.WithLevel(lvl).Err(err).Msg("sFlow encoder error")
}
