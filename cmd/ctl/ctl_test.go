package ctl

import (
	"bytes"
	"net"
	"net/netip"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sflowd/internal/asic"
	"sflowd/internal/rpc"
	"sflowd/internal/sflow"
)

type nopSender struct{}

func (nopSender) Send(netip.AddrPort, []byte) error { return nil }

// unreachableController fails the test if a verb reaches the agent.
type unreachableController struct{ t *testing.T }

func (p unreachableController) fail() { p.t.Fatal("controller called despite invalid input") }

func (p unreachableController) EnableAgent(bool) (bool, error)             { p.fail(); return false, nil }
func (p unreachableController) SetRate(sflow.PortID, uint32, uint32) error { p.fail(); return nil }
func (p unreachableController) ShowRate(sflow.PortID) ([]rpc.RateRow, error) {
	p.fail()
	return nil, nil
}
func (p unreachableController) SetCollector(string, string) error { p.fail(); return nil }
func (p unreachableController) AgentInterface(bool, string) error { p.fail(); return nil }
func (p unreachableController) Status() (sflow.Status, error)     { p.fail(); return sflow.Status{}, nil }

func testController(t *testing.T) *rpc.Client {
	t.Helper()
	sw, err := asic.New(asic.Config{Ports: []string{"eth0", "eth1"}}, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sw.Close() })

	agent := sflow.New(sflow.Config{Hardware: sw, Sender: nopSender{}}, zerolog.Nop())
	t.Cleanup(func() { agent.Disable() })

	socket := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := rpc.StartServer(socket, rpc.NewService(agent, sw, nil, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	c, err := rpc.NewClient(socket)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInvalidInputRejectedLocally(t *testing.T) {
	c := unreachableController{t}
	tests := []struct {
		verb string
		args []string
		want error
	}{
		{"enable-agent", []string{"maybe"}, ErrUsage},
		{"set-rate", []string{"global", "100"}, ErrUsage},
		{"set-rate", []string{"eth0", "100", "100"}, sflow.ErrInvalidPort},
		{"set-rate", []string{"1", "-5", "100"}, sflow.ErrInvalidRate},
		{"set-rate", []string{"1", "100", "lots"}, sflow.ErrInvalidRate},
		{"show-rate", []string{"x"}, sflow.ErrInvalidPort},
		{"set-collector-ip", nil, ErrUsage},
		{"agent-interface", []string{"add"}, ErrUsage},
		{"status", []string{"now"}, ErrUsage},
		{"reboot", nil, ErrUsage},
	}
	for _, tt := range tests {
		err := Exec(c, &bytes.Buffer{}, false, tt.verb, tt.args)
		require.ErrorIs(t, err, tt.want, "%s %v", tt.verb, tt.args)
	}
}

func TestVerbsAgainstAgent(t *testing.T) {
	c := testController(t)
	var out bytes.Buffer

	require.NoError(t, Exec(c, &out, false, "enable-agent", []string{"yes"}))
	require.Contains(t, out.String(), "sFlow agent enabled")

	out.Reset()
	require.NoError(t, Exec(c, &out, false, "enable-agent", []string{"yes"}))
	require.Contains(t, out.String(), "already enabled")

	require.NoError(t, Exec(c, &out, false, "set-rate", []string{"global", "1000", "2000"}))
	require.NoError(t, Exec(c, &out, false, "set-rate", []string{"2", "50", "60"}))

	out.Reset()
	require.NoError(t, Exec(c, &out, false, "show-rate", nil))
	require.Equal(t, "1\teth0\t1000\t2000\n2\teth1\t50\t60\n", out.String())

	require.NoError(t, Exec(c, &out, false, "set-collector-ip", []string{"192.0.2.9", "7000"}))
	require.NoError(t, Exec(c, &out, false, "agent-interface", []string{"add", "10.9.9.9"}))

	out.Reset()
	require.NoError(t, Exec(c, &out, false, "status", nil))
	require.Contains(t, out.String(), "192.0.2.9:7000")
	require.Contains(t, out.String(), "10.9.9.9")
	require.Contains(t, out.String(), "Sampling rate:  50")

	require.NoError(t, Exec(c, &out, false, "agent-interface", []string{"delete"}))
	require.NoError(t, Exec(c, &out, false, "enable-agent", []string{"no"}))
}

func TestShowRatePretty(t *testing.T) {
	c := testController(t)
	require.NoError(t, Exec(c, &bytes.Buffer{}, false, "set-rate", []string{"1", "0", "256"}))

	var out bytes.Buffer
	require.NoError(t, Exec(c, &out, true, "show-rate", []string{"1"}))
	require.Contains(t, out.String(), "Interface")
	require.Contains(t, out.String(), "off")
	require.Contains(t, out.String(), "1/256")
}

func TestShowRateError(t *testing.T) {
	c := testController(t)
	var out bytes.Buffer
	err := Exec(c, &out, false, "show-rate", []string{"7"})
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestSetCollectorWhileDisabled(t *testing.T) {
	c := testController(t)
	err := Exec(c, &bytes.Buffer{}, false, "set-collector-ip", []string{"192.0.2.9"})
	require.ErrorContains(t, err, "not running")
}

func TestSendTestPacket(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	var out bytes.Buffer
	require.NoError(t, sendTestPacket(&out, []string{"127.0.0.1", strconv.Itoa(port)}))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(buf[:n]))

	require.ErrorIs(t, sendTestPacket(&out, []string{"nowhere"}), sflow.ErrInvalidAddress)
	require.ErrorIs(t, sendTestPacket(&out, nil), ErrUsage)
}

func TestIsVerb(t *testing.T) {
	require.True(t, IsVerb("show-rate"))
	require.False(t, IsVerb("agent"))
}
