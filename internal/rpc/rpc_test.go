package rpc

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sflowd/internal/asic"
	"sflowd/internal/sflow"
)

type nopSender struct{}

func (nopSender) Send(netip.AddrPort, []byte) error { return nil }

func testClient(t *testing.T) (*Client, *sflow.Orchestrator) {
	t.Helper()
	return testClientWith(t, sflow.Config{}, nil)
}

func testClientWith(t *testing.T, cfg sflow.Config, opts *sflow.Options) (*Client, *sflow.Orchestrator) {
	t.Helper()
	sw, err := asic.New(asic.Config{Ports: []string{"eth0", "eth1", "eth2"}}, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sw.Close() })

	cfg.Hardware, cfg.Sender = sw, nopSender{}
	agent := sflow.New(cfg, zerolog.Nop())
	t.Cleanup(func() { agent.Disable() })

	socket := filepath.Join(t.TempDir(), "sflowd.sock")
	ln, err := StartServer(socket, NewService(agent, sw, opts, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	c, err := NewClient(socket)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, agent
}

func TestEnableAgent(t *testing.T) {
	c, agent := testClient(t)

	changed, err := c.EnableAgent(true)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, agent.Enabled())

	changed, err = c.EnableAgent(true)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = c.EnableAgent(false)
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, agent.Enabled())

	changed, err = c.EnableAgent(false)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestEnableAgentUsesConfiguredOptions(t *testing.T) {
	resolve := func(name string) (netip.Addr, error) {
		if name != "uplink" {
			return netip.Addr{}, fmt.Errorf("no interface %q", name)
		}
		return netip.MustParseAddr("198.51.100.7"), nil
	}
	opts := &sflow.Options{Targets: []string{"192.0.2.9:7000"}, SubID: 4, SamplingRate: 400, AgentDevice: "uplink"}
	c, _ := testClientWith(t, sflow.Config{ResolveDevice: resolve}, opts)
	require.NoError(t, c.SetRate(sflow.GlobalPort, 500, 500))

	for i := 0; i < 2; i++ {
		changed, err := c.EnableAgent(true)
		require.NoError(t, err)
		require.True(t, changed)

		st, err := c.Status()
		require.NoError(t, err)
		require.Equal(t, "192.0.2.9:7000", st.Collector)
		require.Equal(t, uint32(4), st.SubID)
		require.Equal(t, "198.51.100.7", st.AgentAddress)
		require.Equal(t, uint32(500), st.SamplingRate, "rate set while disabled survives enable")

		changed, err = c.EnableAgent(false)
		require.NoError(t, err)
		require.True(t, changed)
	}
}

func TestSetAndShowRate(t *testing.T) {
	c, _ := testClient(t)

	require.NoError(t, c.SetRate(sflow.GlobalPort, 1000, 2000))
	require.NoError(t, c.SetRate(2, 64, 128))

	rows, err := c.ShowRate(sflow.GlobalPort)
	require.NoError(t, err)
	require.Equal(t, []RateRow{
		{Port: 1, Name: "eth0", Ingress: 1000, Egress: 2000},
		{Port: 2, Name: "eth1", Ingress: 64, Egress: 128},
		{Port: 3, Name: "eth2", Ingress: 1000, Egress: 2000},
	}, rows)

	rows, err = c.ShowRate(3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestShowRateUnknownPort(t *testing.T) {
	c, _ := testClient(t)

	rows, err := c.ShowRate(9)
	require.Error(t, err)
	require.Contains(t, err.Error(), "port 9")
	require.Empty(t, rows)

	require.ErrorContains(t, c.SetRate(9, 1, 1), "unknown port")
}

func TestSetCollector(t *testing.T) {
	c, _ := testClient(t)

	require.ErrorContains(t, c.SetCollector("10.0.0.5", ""), "not running")

	_, err := c.EnableAgent(true)
	require.NoError(t, err)
	require.NoError(t, c.SetCollector("10.0.0.5", "9999"))
	require.ErrorContains(t, c.SetCollector("10.0.0.500", ""), "invalid address")

	st, err := c.Status()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:9999", st.Collector)
}

func TestAgentInterface(t *testing.T) {
	c, _ := testClient(t)
	_, err := c.EnableAgent(true)
	require.NoError(t, err)

	require.NoError(t, c.AgentInterface(true, "2001:db8::10"))
	st, err := c.Status()
	require.NoError(t, err)
	require.Equal(t, "2001:db8::10", st.AgentAddress)

	require.NoError(t, c.AgentInterface(false, ""))
	st, err = c.Status()
	require.NoError(t, err)
	require.Equal(t, sflow.DefaultAgentIP, st.AgentAddress)
}

func TestStatus(t *testing.T) {
	c, _ := testClient(t)

	st, err := c.Status()
	require.NoError(t, err)
	require.False(t, st.Enabled)

	_, err = c.EnableAgent(true)
	require.NoError(t, err)
	st, err = c.Status()
	require.NoError(t, err)
	require.True(t, st.Enabled)
	require.Equal(t, uint32(sflow.DefaultSamplingRate), st.SamplingRate)
	require.Equal(t, uint32(sflow.DefaultSamplingRate), st.Options.SamplingRate)
}
