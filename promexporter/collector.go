// Package promexporter exposes pool and verifier statistics to Prometheus.
package promexporter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/nntp"
)

// Source is a pool whose statistics are exported.
type Source interface {
	Addr() string
	Stats() nntp.PoolStats
	CircuitBreakerState() gobreaker.State
}

var _ Source = (*nntp.Pool)(nil)

// PoolCollector reads pool statistics at scrape time.
type PoolCollector struct {
	mu      sync.Mutex
	sources []Source

	connections    *prometheus.Desc
	created        *prometheus.Desc
	destroyed      *prometheus.Desc
	acquires       *prometheus.Desc
	acquireWaits   *prometheus.Desc
	acquireErrors  *prometheus.Desc
	acquireWait    *prometheus.Desc
	requests       *prometheus.Desc
	requestErrors  *prometheus.Desc
	circuitState   *prometheus.Desc
	commandsSent   *prometheus.Desc
	responses      *prometheus.Desc
	unsolicited    *prometheus.Desc
	bytesRead      *prometheus.Desc
	bytesWritten   *prometheus.Desc
	transportError *prometheus.Desc
	reconnects     *prometheus.Desc
}

// NewPoolCollector returns a collector over sources. More can be added
// with Add.
func NewPoolCollector(sources ...Source) *PoolCollector {
	server := []string{"server"}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("nntp_"+name, help, append(server, labels...), nil)
	}

	return &PoolCollector{
		sources: sources,

		connections:    desc("pool_connections", "Connection pool statistics", "state"), // total, active, idle
		created:        desc("pool_connections_created_total", "Connections created"),
		destroyed:      desc("pool_connections_destroyed_total", "Connections destroyed"),
		acquires:       desc("pool_acquires_total", "Connection acquires"),
		acquireWaits:   desc("pool_acquire_waits_total", "Acquires that waited for a connection"),
		acquireErrors:  desc("pool_acquire_errors_total", "Canceled acquires"),
		acquireWait:    desc("pool_acquire_wait_seconds_total", "Time spent waiting for a connection"),
		requests:       desc("pool_requests_total", "Requests executed through the pool"),
		requestErrors:  desc("pool_request_errors_total", "Requests that failed without a response"),
		circuitState:   desc("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)"),
		commandsSent:   desc("conn_commands_sent", "Commands written by live connections"),
		responses:      desc("conn_responses", "Responses completed by live connections"),
		unsolicited:    desc("conn_unsolicited_responses", "Responses received without a command"),
		bytesRead:      desc("conn_read_bytes", "Bytes read by live connections"),
		bytesWritten:   desc("conn_written_bytes", "Command bytes written by live connections"),
		transportError: desc("conn_transport_errors", "Fatal transport and handshake errors"),
		reconnects:     desc("conn_reconnects", "Reconnects of live connections"),
	}
}

// Add starts exporting s.
func (c *PoolCollector) Add(s Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, s)
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.connections, c.created, c.destroyed, c.acquires, c.acquireWaits,
		c.acquireErrors, c.acquireWait, c.requests, c.requestErrors,
		c.circuitState, c.commandsSent, c.responses, c.unsolicited,
		c.bytesRead, c.bytesWritten, c.transportError, c.reconnects,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sources := append([]Source(nil), c.sources...)
	c.mu.Unlock()

	for _, s := range sources {
		addr := s.Addr()
		stats := s.Stats()

		gauge := func(d *prometheus.Desc, v float64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, append([]string{addr}, labels...)...)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), addr)
		}

		gauge(c.connections, float64(stats.TotalConns), "total")
		gauge(c.connections, float64(stats.ActiveConns), "active")
		gauge(c.connections, float64(stats.IdleConns), "idle")
		gauge(c.circuitState, float64(s.CircuitBreakerState()))

		counter(c.created, stats.CreatedConns)
		counter(c.destroyed, stats.DestroyedConns)
		counter(c.acquires, stats.AcquireCount)
		counter(c.acquireWaits, stats.AcquireWaitCount)
		counter(c.acquireErrors, stats.AcquireErrors)
		counter(c.requests, stats.Requests)
		counter(c.requestErrors, stats.RequestErrors)
		ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, float64(stats.AcquireWaitTimeNs)/1e9, addr)

		// Connection counters only cover connections alive now, so they
		// may go down when the pool destroys one.
		gauge(c.commandsSent, float64(stats.Conns.Sent))
		gauge(c.responses, float64(stats.Conns.Completed))
		gauge(c.unsolicited, float64(stats.Conns.Unsolicited))
		gauge(c.bytesRead, float64(stats.Conns.BytesIn))
		gauge(c.bytesWritten, float64(stats.Conns.BytesOut))
		gauge(c.transportError, float64(stats.Conns.Errors))
		gauge(c.reconnects, float64(stats.Conns.Reconnects))
	}
}
