package sfl

import (
	"encoding/binary"
	"net/netip"
)

// sFlow address types.
const (
	addressTypeUnknown = 0
	addressTypeIPv4    = 1
	addressTypeIPv6    = 2
)

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// appendOpaque writes data padded with zeroes to a 4-byte boundary.
// The length prefix is written by the caller.
func appendOpaque(b, data []byte) []byte {
	b = append(b, data...)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		b = append(b, make([]byte, pad)...)
	}
	return b
}

func appendAddress(b []byte, addr netip.Addr) []byte {
	switch {
	case addr.Is4():
		a := addr.As4()
		b = appendUint32(b, addressTypeIPv4)
		return append(b, a[:]...)
	case addr.Is6():
		a := addr.As16()
		b = appendUint32(b, addressTypeIPv6)
		return append(b, a[:]...)
	default:
		return appendUint32(b, addressTypeUnknown)
	}
}

func addressSize(addr netip.Addr) int {
	switch {
	case addr.Is4():
		return 4 + 4
	case addr.Is6():
		return 4 + 16
	default:
		return 4
	}
}
