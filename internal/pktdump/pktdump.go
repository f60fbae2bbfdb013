// Package pktdump renders the layers of a captured frame as structured log
// fields.
package pktdump

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"
)

// Dict decodes data starting at first and returns its salient fields as a
// zerolog dictionary. Undecodable trailing data is reported under "error".
func Dict(data []byte, first gopacket.LayerType) *zerolog.Event {
	d := zerolog.Dict()
	pkt := gopacket.NewPacket(data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	for _, l := range pkt.Layers() {
		switch l := l.(type) {
		case *layers.Ethernet:
			d.Str("src_mac", l.SrcMAC.String()).
				Str("dst_mac", l.DstMAC.String()).
				Stringer("ethertype", l.EthernetType)
		case *layers.Dot1Q:
			d.Uint16("vlan", l.VLANIdentifier).Uint8("priority", l.Priority)
		case *layers.ARP:
			d.Uint16("arp_op", l.Operation)
		case *layers.IPv4:
			d.Str("src_ip", l.SrcIP.String()).
				Str("dst_ip", l.DstIP.String()).
				Stringer("proto", l.Protocol).
				Uint8("ttl", l.TTL)
		case *layers.IPv6:
			d.Str("src_ip", l.SrcIP.String()).
				Str("dst_ip", l.DstIP.String()).
				Stringer("proto", l.NextHeader).
				Uint8("hop_limit", l.HopLimit)
		case *layers.TCP:
			d.Uint16("src_port", uint16(l.SrcPort)).
				Uint16("dst_port", uint16(l.DstPort)).
				Str("tcp_flags", tcpFlags(l))
		case *layers.UDP:
			d.Uint16("src_port", uint16(l.SrcPort)).
				Uint16("dst_port", uint16(l.DstPort))
		case *layers.ICMPv4:
			d.Stringer("icmp", l.TypeCode)
		case *layers.ICMPv6:
			d.Stringer("icmp", l.TypeCode)
		}
	}

	if el := pkt.ErrorLayer(); el != nil {
		d.Str("error", el.Error().Error())
	}
	return d
}

func tcpFlags(tcp *layers.TCP) string {
	var s string
	if tcp.SYN {
		s += "S"
	}
	if tcp.ACK {
		s += "A"
	}
	if tcp.PSH {
		s += "P"
	}
	if tcp.FIN {
		s += "F"
	}
	if tcp.RST {
		s += "R"
	}
	if s == "" {
		s = "."
	}
	return s
}
