package asic

import (
	"math/rand/v2"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"sflowd/internal/pktdump"
	"sflowd/internal/sflow"
)

// shouldSample makes a random 1-in-rate decision. Rate 0 disables sampling.
func shouldSample(rate uint32) bool {
	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return rand.Uint32N(rate) == 0
}

// frameDecoder pulls the 802.1Q tag out of a frame without allocating.
type frameDecoder struct {
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func newFrameDecoder() *frameDecoder {
	d := &frameDecoder{decoded: make([]gopacket.LayerType, 0, 2)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.dot1q)
	d.parser.IgnoreUnsupported = true
	return d
}

func (d *frameDecoder) vlan(frame []byte) (id uint16, priority uint8) {
	d.decoded = d.decoded[:0]
	_ = d.parser.DecodeLayers(frame, &d.decoded)
	for _, typ := range d.decoded {
		if typ == layers.LayerTypeDot1Q {
			return d.dot1q.VLANIdentifier, d.dot1q.Priority
		}
	}
	return 0, 0
}

// sampleFrame applies the port's rate register for dir and hands a sampled
// frame to the sink. frameLen is the on-wire length without FCS; frame may be
// truncated to the snap length. It reports whether the frame was submitted.
func (s *Switch) sampleFrame(p *port, dir sflow.FilterDirection, frame []byte, frameLen int, dec *frameDecoder) bool {
	if !shouldSample(p.rate(dir)) {
		return false
	}
	ref := s.sink.Load()
	if ref == nil || ref.Sink == nil {
		return false
	}

	pkt := sflow.Packet{
		TotalLength: uint32(frameLen) + fcsLength,
		Header:      frame,
		Direction:   dir,
	}
	if dir == sflow.FilterDestination {
		pkt.OutPort = p.id
	} else {
		pkt.InPort = p.id
	}
	pkt.VLAN, pkt.Priority = dec.vlan(frame)

	if e := s.log.Trace(); e.Enabled() {
		e.Str("interface", p.name).
			Stringer("direction", dir).
			Int("frame_len", frameLen).
			Dict("frame", pktdump.Dict(frame, layers.LayerTypeEthernet)).
			Msg("Sampled frame")
	}

	ref.SubmitSampledPacket(&pkt)
	return true
}
