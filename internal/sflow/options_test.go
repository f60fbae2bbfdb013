package sflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsEqual(t *testing.T) {
	a := &Options{Targets: []string{"10.0.0.1", "10.0.0.2"}, SamplingRate: 400, AgentDevice: "eth0"}
	b := &Options{Targets: []string{"10.0.0.2", "10.0.0.1", "10.0.0.1"}, SamplingRate: 400, AgentDevice: "eth0", PollingInterval: 10}
	require.True(t, a.Equal(b))

	b.SamplingRate = 800
	require.False(t, a.Equal(b))
	require.False(t, a.Equal(nil))
	require.True(t, (*Options)(nil).Equal(nil))
}

func TestOptionsClone(t *testing.T) {
	a := &Options{Targets: []string{"10.0.0.1"}}
	c := a.Clone()
	c.Targets[0] = "10.0.0.9"
	require.Equal(t, "10.0.0.1", a.Targets[0])
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		in, host, port string
	}{
		{"10.0.0.5", "10.0.0.5", ""},
		{"10.0.0.5:9999", "10.0.0.5", "9999"},
		{"2001:db8::1", "2001:db8::1", ""},
		{"[2001:db8::1]:6343", "2001:db8::1", "6343"},
		{"[2001:db8::1]", "2001:db8::1", ""},
	}
	for _, tt := range tests {
		host, port := SplitTarget(tt.in)
		require.Equal(t, tt.host, host, tt.in)
		require.Equal(t, tt.port, port, tt.in)
	}
}

func TestParseHelpers(t *testing.T) {
	r, err := ParseRate("4096")
	require.NoError(t, err)
	require.Equal(t, uint32(4096), r)

	_, err = ParseRate("-1")
	require.ErrorIs(t, err, ErrInvalidRate)

	p, err := ParsePortScope("global")
	require.NoError(t, err)
	require.Equal(t, GlobalPort, p)

	p, err = ParsePortScope("12")
	require.NoError(t, err)
	require.Equal(t, PortID(12), p)

	_, err = ParsePortScope("eth0")
	require.ErrorIs(t, err, ErrInvalidPort)

	require.Equal(t, FamilyIPv6, FamilyOf("::1"))
	require.Equal(t, FamilyIPv4, FamilyOf("10.0.0.1"))
}
