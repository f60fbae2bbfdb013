package pktdump

import (
	"bytes"
	"encoding/json"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, vlan uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(192, 0, 2, 1),
		DstIP:    net.IPv4(192, 0, 2, 2),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	ls := []gopacket.SerializableLayer{eth}
	if vlan != 0 {
		eth.EthernetType = layers.EthernetTypeDot1Q
		ls = append(ls, &layers.Dot1Q{VLANIdentifier: vlan, Priority: 5, Type: layers.EthernetTypeIPv4})
	}
	ls = append(ls, ip, tcp, gopacket.Payload("hello"))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func render(t *testing.T, d *zerolog.Event) map[string]any {
	t.Helper()
	var out bytes.Buffer
	logger := zerolog.New(&out)
	logger.Info().Dict("frame", d).Send()

	var line struct {
		Frame map[string]any `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	return line.Frame
}

func TestDictTCP(t *testing.T) {
	f := render(t, Dict(buildFrame(t, 0), layers.LayerTypeEthernet))

	require.Equal(t, "02:00:00:00:00:01", f["src_mac"])
	require.Equal(t, "192.0.2.1", f["src_ip"])
	require.Equal(t, "192.0.2.2", f["dst_ip"])
	require.Equal(t, "TCP", f["proto"])
	require.EqualValues(t, 443, f["dst_port"])
	require.Equal(t, "S", f["tcp_flags"])
	require.NotContains(t, f, "vlan")
}

func TestDictVLAN(t *testing.T) {
	f := render(t, Dict(buildFrame(t, 100), layers.LayerTypeEthernet))

	require.EqualValues(t, 100, f["vlan"])
	require.EqualValues(t, 5, f["priority"])
	require.Equal(t, "192.0.2.1", f["src_ip"])
}

func TestDictTruncated(t *testing.T) {
	frame := buildFrame(t, 0)
	f := render(t, Dict(frame[:20], layers.LayerTypeEthernet))

	require.Equal(t, "IPv4", f["ethertype"])
	require.Contains(t, f, "error")
}
