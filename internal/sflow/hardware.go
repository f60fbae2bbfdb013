package sflow

// PortID identifies a front-panel port. GlobalPort selects all of them.
type PortID uint32

const GlobalPort PortID = 0

// FilterDirection selects which side of a port a capture filter samples.
type FilterDirection int

const (
	// FilterSource samples frames as they are received.
	FilterSource FilterDirection = iota
	// FilterDestination samples frames as they are transmitted.
	FilterDestination
)

func (d FilterDirection) String() string {
	switch d {
	case FilterSource:
		return "source"
	case FilterDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// FilterToken is the opaque handle of an installed capture filter.
type FilterToken int

// HardwareAdapter applies sampling rates to ports and wires sampled packets
// to the capture path.
type HardwareAdapter interface {
	SetPortSamplingRate(port PortID, ingress, egress uint32) error
	PortSamplingRate(port PortID) (ingress, egress uint32, err error)
	EnumeratePorts() ([]PortID, error)
	InstallSampleFilter(dir FilterDirection) (FilterToken, error)
	RemoveSampleFilter(token FilterToken) error
}

// Packet is a sampled frame as delivered by the hardware. Header is only
// valid for the duration of the delivery call.
type Packet struct {
	// TotalLength is the frame length on the wire, FCS included.
	TotalLength uint32
	Header      []byte
	InPort      PortID
	OutPort     PortID
	VLAN        uint16
	Priority    uint8
	Direction   FilterDirection
}
