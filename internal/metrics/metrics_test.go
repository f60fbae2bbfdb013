package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SamplesSubmitted.Inc()
	m.SamplesDropped.WithLabelValues(DropNotRunning).Add(2)
	m.RateUpdates.WithLabelValues("global").Inc()
	m.AgentEnabled.Set(1)

	require.Equal(t, float64(2), testutil.ToFloat64(m.SamplesDropped.WithLabelValues(DropNotRunning)))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sflowd_agent_enabled 1 while the sFlow agent is enabled
# TYPE sflowd_agent_enabled gauge
sflowd_agent_enabled 1
`), "sflowd_agent_enabled")
	require.NoError(t, err)

	require.Panics(t, func() { New(reg) }, "double registration")
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	reg := prometheus.NewRegistry()
	New(reg).DatagramsSent.Add(3)
	Serve(addr, reg, zerolog.Nop())

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	require.Contains(t, body, "sflowd_datagrams_sent_total 3")
}
