package sfl

import (
	"fmt"
	"net/netip"
)

// DefaultCollectorPort is the IANA-assigned sFlow port.
const DefaultCollectorPort = 6343

// Receiver batches encoded samples into datagrams for one collector.
type Receiver struct {
	agent   *Agent
	owner   string
	timeout uint32
	addr    netip.Addr
	port    uint32

	pending []byte
	count   uint32
	seq     uint32
}

func (r *Receiver) SetOwner(owner string)      { r.owner = owner }
func (r *Receiver) Owner() string              { return r.owner }
func (r *Receiver) SetTimeout(timeout uint32)  { r.timeout = timeout }
func (r *Receiver) Timeout() uint32            { return r.timeout }
func (r *Receiver) SetAddress(addr netip.Addr) { r.addr = addr }
func (r *Receiver) Address() netip.Addr        { return r.addr }
func (r *Receiver) SetPort(port uint32)        { r.port = port }

// Port returns the collector port, DefaultCollectorPort when unset.
func (r *Receiver) Port() uint32 {
	if r.port == 0 {
		return DefaultCollectorPort
	}
	return r.port
}

// SequenceNumber returns the sequence number of the last datagram built.
func (r *Receiver) SequenceNumber() uint32 { return r.seq }

// Pending returns the number of samples waiting for the next flush.
func (r *Receiver) Pending() uint32 { return r.count }

func (r *Receiver) headerSize() int {
	// version, address, sub id, sequence, uptime, sample count
	return 4 + addressSize(r.agent.addr) + 4*4
}

func (r *Receiver) write(fs *FlowSample) error {
	n := fs.size()
	limit := r.agent.datagramSize - r.headerSize()
	if n > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrSampleTooBig, n, limit)
	}
	if r.count > 0 && len(r.pending)+n > limit {
		if err := r.Flush(); err != nil {
			r.agent.hooks.Error(err)
		}
	}
	if r.pending == nil {
		r.pending = r.agent.hooks.Alloc(r.agent.datagramSize)[:0]
	}
	r.pending = fs.append(r.pending)
	r.count++
	return nil
}

// Flush sends the pending datagram, if any. Pending samples are discarded
// whether or not the send succeeds.
func (r *Receiver) Flush() error {
	if r.count == 0 {
		return nil
	}
	defer func() {
		r.pending = r.pending[:0]
		r.count = 0
	}()

	if !r.addr.IsValid() {
		return fmt.Errorf("dropping %d samples: %w", r.count, ErrNoAddress)
	}

	r.seq++
	out := r.agent.hooks.Alloc(r.headerSize() + len(r.pending))[:0]
	defer r.agent.hooks.Free(out)

	out = appendUint32(out, version)
	out = appendAddress(out, r.agent.addr)
	out = appendUint32(out, r.agent.subID)
	out = appendUint32(out, r.seq)
	out = appendUint32(out, r.agent.uptime())
	out = appendUint32(out, r.count)
	out = append(out, r.pending...)

	dst := netip.AddrPortFrom(r.addr, uint16(r.Port()))
	if err := r.agent.sender.Send(dst, out); err != nil {
		return fmt.Errorf("sending datagram %d to %s: %w", r.seq, dst, err)
	}
	return nil
}

func (r *Receiver) free() {
	if r.pending != nil {
		r.agent.hooks.Free(r.pending)
		r.pending = nil
	}
	r.count = 0
}
