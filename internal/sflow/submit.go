package sflow

import (
	"sflowd/internal/metrics"
	"sflowd/internal/sfl"
)

// SubmitSampledPacket encodes one hardware-sampled packet. It never fails
// from the caller's point of view: packets that cannot be encoded are
// dropped with a diagnostic.
func (o *Orchestrator) SubmitSampledPacket(pkt *Packet) {
	if pkt == nil {
		o.hotLog.Error().Msg("Nil sFlow packet received")
		o.drop(metrics.DropNilPacket)
		return
	}
	if !o.live.Load() {
		o.hotLog.Debug().Msg("sFlow agent uninitialized, dropping sample")
		o.drop(metrics.DropNotRunning)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.agent == nil {
		o.drop(metrics.DropNotRunning)
		return
	}
	if o.sampler == nil {
		o.hotLog.Error().Msg("Sampler on sFlow agent uninitialized")
		o.drop(metrics.DropNoSampler)
		return
	}

	fs := buildFlowSample(pkt, o.sampler.MaxHeaderSize())
	if err := o.sampler.WriteFlowSample(&fs); err != nil {
		o.drop(metrics.DropEncoderError)
		return
	}
	if o.metrics != nil {
		o.metrics.SamplesSubmitted.Inc()
	}
}

func (o *Orchestrator) drop(reason string) {
	if o.metrics != nil {
		o.metrics.SamplesDropped.WithLabelValues(reason).Inc()
	}
}

// buildFlowSample describes pkt as an Ethernet sampled-header record. The
// header bytes are referenced, not copied.
func buildFlowSample(pkt *Packet, maxHeader uint32) sfl.FlowSample {
	fs := sfl.FlowSample{
		Input:  uint32(pkt.InPort),
		Output: uint32(pkt.OutPort),
		Header: sfl.SampledHeader{
			Protocol:     sfl.HeaderProtocolEthernet,
			FrameLength:  pkt.TotalLength,
			Stripped:     ethernetFCSLength,
			HeaderLength: min(pkt.TotalLength, maxHeader),
			Header:       pkt.Header,
		},
	}
	if pkt.VLAN != 0 {
		fs.Switch = &sfl.ExtendedSwitch{
			SrcVLAN:     uint32(pkt.VLAN),
			SrcPriority: uint32(pkt.Priority),
			DstVLAN:     uint32(pkt.VLAN),
			DstPriority: uint32(pkt.Priority),
		}
	}
	return fs
}
