package nntp

import (
	"sync/atomic"
)

// ConnStats contains statistics about a single connection.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as counters (see promexporter).
type ConnStats struct {
	Connects    uint64 // Transport connects that completed
	Reconnects  uint64 // Reconnect calls that started a connect
	Sent        uint64 // Commands written
	Completed   uint64 // Responses completed, unsolicited included
	Unsolicited uint64 // Responses without a command
	BytesIn     uint64 // Bytes read from the transport (decrypted)
	BytesOut    uint64 // Command bytes written (before encryption)
	Errors      uint64 // Fatal transport and handshake errors
}

// connStatsCollector provides internal methods for updating connection
// stats. Not exported - connections update their own stats.
type connStatsCollector struct {
	stats *ConnStats
}

func newConnStatsCollector() *connStatsCollector {
	return &connStatsCollector{
		stats: &ConnStats{},
	}
}

func (c *connStatsCollector) recordConnect() {
	atomic.AddUint64(&c.stats.Connects, 1)
}

func (c *connStatsCollector) recordReconnect() {
	atomic.AddUint64(&c.stats.Reconnects, 1)
}

func (c *connStatsCollector) recordSend(n int) {
	atomic.AddUint64(&c.stats.Sent, 1)
	atomic.AddUint64(&c.stats.BytesOut, uint64(n))
}

func (c *connStatsCollector) recordRead(n int) {
	atomic.AddUint64(&c.stats.BytesIn, uint64(n))
}

func (c *connStatsCollector) recordComplete(req *Request) {
	atomic.AddUint64(&c.stats.Completed, 1)
	if req.Unsolicited() {
		atomic.AddUint64(&c.stats.Unsolicited, 1)
	}
}

func (c *connStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *connStatsCollector) snapshot() ConnStats {
	return ConnStats{
		Connects:    atomic.LoadUint64(&c.stats.Connects),
		Reconnects:  atomic.LoadUint64(&c.stats.Reconnects),
		Sent:        atomic.LoadUint64(&c.stats.Sent),
		Completed:   atomic.LoadUint64(&c.stats.Completed),
		Unsolicited: atomic.LoadUint64(&c.stats.Unsolicited),
		BytesIn:     atomic.LoadUint64(&c.stats.BytesIn),
		BytesOut:    atomic.LoadUint64(&c.stats.BytesOut),
		Errors:      atomic.LoadUint64(&c.stats.Errors),
	}
}

// add accumulates o into s, for totals across connections.
func (s *ConnStats) add(o ConnStats) {
	s.Connects += o.Connects
	s.Reconnects += o.Reconnects
	s.Sent += o.Sent
	s.Completed += o.Completed
	s.Unsolicited += o.Unsolicited
	s.BytesIn += o.BytesIn
	s.BytesOut += o.BytesOut
	s.Errors += o.Errors
}

// PoolStats contains statistics about a Pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
//   - Counters: Requests, RequestErrors
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Canceled acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting
	Requests          uint64 // Requests executed through the pool
	RequestErrors     uint64 // Requests that failed without a response

	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use

	// Conns sums the counters of the pooled connections alive now.
	Conns ConnStats
}
