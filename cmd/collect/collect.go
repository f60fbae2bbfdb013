// Package collect implements the sflowd diagnostic collector: it receives
// sFlow datagrams and logs every flow sample with its decoded header.
package collect

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"
	goflow "github.com/netsampler/goflow2/v2/decoders/sflow"
	"github.com/rs/zerolog"

	"sflowd/internal/pktdump"
	"sflowd/pkg/config"
	"sflowd/pkg/logger"
)

const maxPacketSize = 65535

// Run listens on the configured address until the socket fails.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Agent.LogLevel)

	conn, err := net.ListenPacket("udp", cfg.Collect.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Collect.Listen, err)
	}
	defer conn.Close()

	log.Info().Str("listen", conn.LocalAddr().String()).Msg("Collector started, waiting for datagrams")

	return newCollector(log).serve(conn)
}

type agentKey struct {
	addr  netip.Addr
	subID uint32
}

type collector struct {
	log zerolog.Logger
	// last datagram sequence number seen per sub-agent
	seqs map[agentKey]uint32
}

func newCollector(log zerolog.Logger) *collector {
	return &collector{log: log, seqs: make(map[agentKey]uint32)}
}

func (c *collector) serve(conn net.PacketConn) error {
	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := conn.ReadFrom(buf)
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading datagram: %w", err)
		}
		if err := c.handleDatagram(buf[:n], src); err != nil {
			c.log.Warn().Err(err).Str("src", src.String()).Int("bytes", n).Msg("Failed to decode datagram")
		}
	}
}

func (c *collector) handleDatagram(data []byte, src net.Addr) error {
	var pkt goflow.Packet
	if err := goflow.DecodeMessageVersion(bytes.NewBuffer(data), &pkt); err != nil {
		return err
	}

	agent, _ := netip.AddrFromSlice(pkt.AgentIP)
	log := c.log.With().
		Str("src", src.String()).
		Str("agent", agent.Unmap().String()).
		Uint32("sub_id", pkt.SubAgentId).
		Uint32("seq", pkt.SequenceNumber).
		Logger()

	key := agentKey{agent, pkt.SubAgentId}
	if last, ok := c.seqs[key]; ok && pkt.SequenceNumber != last+1 {
		log.Warn().Uint32("expected", last+1).Msg("Datagram sequence gap")
	}
	c.seqs[key] = pkt.SequenceNumber

	log.Debug().Uint32("uptime_ms", pkt.Uptime).Uint32("samples", pkt.SamplesCount).Msg("Datagram received")

	for _, s := range pkt.Samples {
		switch s := s.(type) {
		case goflow.FlowSample:
			c.logFlowSample(log, &s)
		case *goflow.FlowSample:
			c.logFlowSample(log, s)
		default:
			log.Debug().Str("type", fmt.Sprintf("%T", s)).Msg("Skipping non-flow sample")
		}
	}
	return nil
}

func (c *collector) logFlowSample(log zerolog.Logger, fs *goflow.FlowSample) {
	e := log.Info().
		Uint32("sample_seq", fs.Header.SampleSequenceNumber).
		Uint32("source_class", fs.Header.SourceIdType).
		Uint32("source_index", fs.Header.SourceIdValue).
		Uint32("rate", fs.SamplingRate).
		Uint32("pool", fs.SamplePool).
		Uint32("drops", fs.Drops).
		Uint32("input", fs.Input).
		Uint32("output", fs.Output)

	for _, rec := range fs.Records {
		switch d := rec.Data.(type) {
		case goflow.SampledHeader:
			logSampledHeader(e, &d)
		case *goflow.SampledHeader:
			logSampledHeader(e, d)
		case goflow.ExtendedSwitch:
			e.Uint32("src_vlan", d.SrcVlan).Uint32("src_priority", d.SrcPriority)
		case *goflow.ExtendedSwitch:
			e.Uint32("src_vlan", d.SrcVlan).Uint32("src_priority", d.SrcPriority)
		}
	}
	e.Msg("Flow sample")
}

func logSampledHeader(e *zerolog.Event, h *goflow.SampledHeader) {
	e.Uint32("frame_len", h.FrameLength).Uint32("header_len", h.OriginalLength)
	data := h.HeaderData
	if int(h.OriginalLength) <= len(data) {
		data = data[:h.OriginalLength]
	}
	if h.Protocol == 1 {
		e.Dict("frame", pktdump.Dict(data, layers.LayerTypeEthernet))
	}
}
