// Package transport ships encoded sFlow datagrams to collectors over UDP.
package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"sflowd/internal/metrics"
)

const writeBufferSize = 64 * 1024

// UDPSender writes datagrams from one unconnected socket per address family.
// Sockets are opened on first use.
type UDPSender struct {
	tos     int
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu sync.Mutex
	v4 *net.UDPConn
	v6 *net.UDPConn
}

// NewUDPSender returns a sender that marks datagrams with the given TOS
// (traffic class for IPv6). m may be nil.
func NewUDPSender(tos int, m *metrics.Metrics, log zerolog.Logger) *UDPSender {
	return &UDPSender{tos: tos, metrics: m, log: log}
}

// Send writes datagram to dst.
func (s *UDPSender) Send(dst netip.AddrPort, datagram []byte) error {
	conn, err := s.conn(dst.Addr().Unmap().Is4())
	if err != nil {
		s.count(err)
		return err
	}
	_, err = conn.WriteToUDPAddrPort(datagram, dst)
	if err != nil {
		err = fmt.Errorf("writing datagram to %s: %w", dst, err)
	}
	s.count(err)
	return err
}

func (s *UDPSender) count(err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.DatagramErrors.Inc()
		return
	}
	s.metrics.DatagramsSent.Inc()
}

func (s *UDPSender) conn(v4 bool) (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v4 && s.v4 != nil {
		return s.v4, nil
	}
	if !v4 && s.v6 != nil {
		return s.v6, nil
	}

	network, laddr := "udp4", &net.UDPAddr{IP: net.IPv4zero}
	if !v4 {
		network, laddr = "udp6", &net.UDPAddr{IP: net.IPv6unspecified}
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("opening %s socket: %w", network, err)
	}
	if err := conn.SetWriteBuffer(writeBufferSize); err != nil {
		s.log.Warn().Err(err).Msg("Failed to set write buffer")
	}

	if v4 {
		if s.tos != 0 {
			if err := ipv4.NewConn(conn).SetTOS(s.tos); err != nil {
				s.log.Warn().Err(err).Int("tos", s.tos).Msg("Failed to set TOS")
			}
		}
		s.v4 = conn
	} else {
		if s.tos != 0 {
			if err := ipv6.NewConn(conn).SetTrafficClass(s.tos); err != nil {
				s.log.Warn().Err(err).Int("tos", s.tos).Msg("Failed to set traffic class")
			}
		}
		s.v6 = conn
	}

	s.log.Debug().Str("network", network).Str("local", conn.LocalAddr().String()).Msg("Collector socket opened")
	return conn, nil
}

// Close closes any open sockets.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.v4 != nil {
		err = s.v4.Close()
		s.v4 = nil
	}
	if s.v6 != nil {
		if cerr := s.v6.Close(); err == nil {
			err = cerr
		}
		s.v6 = nil
	}
	return err
}
