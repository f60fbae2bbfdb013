//go:build linux

package asic

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const pollInterval = 100 * 1000 // microseconds

type packetSocket struct {
	fd int
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func openCapture(ifname string) (frameSource, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("finding interface %s: %w", ifname, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("creating AF_PACKET socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding to %s: %w", ifname, err)
	}

	tv := unix.Timeval{Usec: pollInterval}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}

	return &packetSocket{fd: fd}, nil
}

func (p *packetSocket) read(buf []byte) (int, int, bool, error) {
	// MSG_TRUNC makes the kernel report the full frame length.
	n, from, err := unix.Recvfrom(p.fd, buf, unix.MSG_TRUNC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, 0, false, errCaptureTimeout
		}
		return 0, 0, false, err
	}

	var outgoing bool
	if ll, ok := from.(*unix.SockaddrLinklayer); ok {
		outgoing = ll.Pkttype == unix.PACKET_OUTGOING
	}
	return min(n, len(buf)), n, outgoing, nil
}

func (p *packetSocket) close() error {
	return unix.Close(p.fd)
}
