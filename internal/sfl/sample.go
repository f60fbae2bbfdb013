package sfl

// Header protocols for the sampled header record.
const (
	HeaderProtocolEthernet uint32 = 1
	HeaderProtocolIPv4     uint32 = 11
	HeaderProtocolIPv6     uint32 = 12
)

// Data source classes.
const (
	DSClassIfIndex        uint8 = 0
	DSClassVLAN           uint8 = 1
	DSClassPhysicalEntity uint8 = 2
)

// Record formats (enterprise 0).
const (
	formatFlowSample     = 1
	formatSampledHeader  = 1
	formatExtendedSwitch = 1001
)

// DataSource identifies the entity a sampler represents.
type DataSource struct {
	Class    uint8
	Index    uint32
	Instance uint32
}

// ID returns the source id as encoded in a flow sample.
func (d DataSource) ID() uint32 {
	return uint32(d.Class)<<24 | d.Index&0x00ffffff
}

// SampledHeader is the raw packet header record of a flow sample.
type SampledHeader struct {
	Protocol     uint32
	FrameLength  uint32
	Stripped     uint32
	HeaderLength uint32
	// Header is referenced, not copied. Only the first HeaderLength bytes
	// (or fewer, if the buffer is shorter) are encoded.
	Header []byte
}

func (h *SampledHeader) bytes() []byte {
	n := int(h.HeaderLength)
	if n > len(h.Header) {
		n = len(h.Header)
	}
	return h.Header[:n]
}

func (h *SampledHeader) size() int {
	n := len(h.bytes())
	return 16 + n + (4-n%4)%4
}

func (h *SampledHeader) append(b []byte) []byte {
	data := h.bytes()
	b = appendUint32(b, formatSampledHeader)
	b = appendUint32(b, uint32(h.size()))
	b = appendUint32(b, h.Protocol)
	b = appendUint32(b, h.FrameLength)
	b = appendUint32(b, h.Stripped)
	b = appendUint32(b, uint32(len(data)))
	return appendOpaque(b, data)
}

// ExtendedSwitch carries the 802.1Q information of a sampled frame.
type ExtendedSwitch struct {
	SrcVLAN     uint32
	SrcPriority uint32
	DstVLAN     uint32
	DstPriority uint32
}

func (e *ExtendedSwitch) append(b []byte) []byte {
	b = appendUint32(b, formatExtendedSwitch)
	b = appendUint32(b, 16)
	b = appendUint32(b, e.SrcVLAN)
	b = appendUint32(b, e.SrcPriority)
	b = appendUint32(b, e.DstVLAN)
	return appendUint32(b, e.DstPriority)
}

// FlowSample is one sampled packet handed to a Sampler. The sampler fills
// sequence number, source id, sampling rate and sample pool.
type FlowSample struct {
	Input  uint32
	Output uint32
	Drops  uint32
	Header SampledHeader
	Switch *ExtendedSwitch

	SequenceNumber uint32
	SourceID       uint32
	SamplingRate   uint32
	SamplePool     uint32
}

func (fs *FlowSample) records() uint32 {
	if fs.Switch != nil {
		return 2
	}
	return 1
}

// size is the encoded length including the sample's own format/length words.
func (fs *FlowSample) size() int {
	n := 8 + 32 + 8 + fs.Header.size()
	if fs.Switch != nil {
		n += 8 + 16
	}
	return n
}

func (fs *FlowSample) append(b []byte) []byte {
	b = appendUint32(b, formatFlowSample)
	b = appendUint32(b, uint32(fs.size()-8))
	b = appendUint32(b, fs.SequenceNumber)
	b = appendUint32(b, fs.SourceID)
	b = appendUint32(b, fs.SamplingRate)
	b = appendUint32(b, fs.SamplePool)
	b = appendUint32(b, fs.Drops)
	b = appendUint32(b, fs.Input)
	b = appendUint32(b, fs.Output)
	b = appendUint32(b, fs.records())
	b = fs.Header.append(b)
	if fs.Switch != nil {
		b = fs.Switch.append(b)
	}
	return b
}
