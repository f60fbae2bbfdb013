// Package metrics exposes sflowd counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "sflowd"

// Drop reasons for SamplesDropped.
const (
	DropNilPacket    = "nil_packet"
	DropNotRunning   = "not_running"
	DropNoSampler    = "no_sampler"
	DropEncoderError = "encoder_error"
)

// Metrics holds every collector sflowd registers.
type Metrics struct {
	SamplesSubmitted prometheus.Counter
	SamplesDropped   *prometheus.CounterVec
	DatagramsSent    prometheus.Counter
	DatagramErrors   prometheus.Counter
	EncoderErrors    prometheus.Counter
	RateUpdates      *prometheus.CounterVec
	AgentEnabled     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_submitted_total",
			Help:      "Flow samples handed to the encoder",
		}),
		SamplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Sampled packets not encoded, by reason",
		}, []string{"reason"}),
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "sFlow datagrams written to a collector socket",
		}),
		DatagramErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagram_errors_total",
			Help:      "sFlow datagrams that failed to send",
		}),
		EncoderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoder_errors_total",
			Help:      "Errors reported by the sFlow encoder",
		}),
		RateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_updates_total",
			Help:      "Sampling rate updates pushed to hardware, by scope",
		}, []string{"scope"}),
		AgentEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_enabled",
			Help:      "1 while the sFlow agent is enabled",
		}),
	}
	reg.MustRegister(
		m.SamplesSubmitted,
		m.SamplesDropped,
		m.DatagramsSent,
		m.DatagramErrors,
		m.EncoderErrors,
		m.RateUpdates,
		m.AgentEnabled,
	)
	return m
}

// Serve exposes the gatherer on addr at /metrics until the listener fails.
func Serve(addr string, g prometheus.Gatherer, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}
