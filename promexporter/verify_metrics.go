package promexporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VerifyMetrics holds the metrics of a bulk availability check.
type VerifyMetrics struct {
	results  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	pending  prometheus.Gauge
	duration prometheus.Gauge
}

// NewVerifyMetrics creates and registers the verifier metrics.
func NewVerifyMetrics(registry prometheus.Registerer) *VerifyMetrics {
	m := &VerifyMetrics{
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nntp_verify_results_total",
				Help: "Checked message ids by result",
			},
			[]string{"server", "result"}, // available, missing, unknown
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nntp_verify_stat_seconds",
				Help:    "STAT round trip, pool wait included",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"server"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nntp_verify_pending",
				Help: "Message ids not checked yet",
			},
		),
		duration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nntp_verify_duration_seconds",
				Help: "Duration of the last completed run",
			},
		),
	}

	registry.MustRegister(m.results, m.latency, m.pending, m.duration)
	return m
}

// Start records the number of ids about to be checked.
func (m *VerifyMetrics) Start(total int) {
	m.pending.Set(float64(total))
}

// RecordOutcome records one checked id.
func (m *VerifyMetrics) RecordOutcome(server, result string, elapsed time.Duration) {
	m.results.WithLabelValues(server, result).Inc()
	m.latency.WithLabelValues(server).Observe(elapsed.Seconds())
	m.pending.Dec()
}

// Finish records the duration of a run.
func (m *VerifyMetrics) Finish(elapsed time.Duration) {
	m.pending.Set(0)
	m.duration.Set(elapsed.Seconds())
}
