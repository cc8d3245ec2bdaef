// Package metrics tracks process-wide operational counters for the
// transposition service. There is no metrics endpoint and the event log
// does not report these counters; they are process-internal and read only
// through Snapshot.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks job-lifecycle and transpose-engine statistics across
// every connection the process serves.
type Metrics struct {
	JobsReserved  atomic.Uint64 // Total reserve calls admitted
	JobsRejected  atomic.Uint64 // Reserve calls rejected (insufficient memory)
	JobsCompleted atomic.Uint64 // Total jobs that reached Completed
	JobsDelivered atomic.Uint64 // Total jobs removed from a table via poll

	BytesTransposed atomic.Uint64 // Sum of s*d*d across completed jobs

	TotalTransposeNs atomic.Uint64 // Cumulative wall time spent in the transpose engine
	TransposeCount   atomic.Uint64 // Number of completed transposes (for average latency)

	StartTime atomic.Int64 // Process start timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordReserve records an admitted reservation.
func (m *Metrics) RecordReserve() {
	m.JobsReserved.Add(1)
}

// RecordRejected records a reservation denied by the admission oracle.
func (m *Metrics) RecordRejected() {
	m.JobsRejected.Add(1)
}

// RecordCompleted records a job reaching Completed, along with the
// transpose engine's wall-clock duration and the buffer size transposed.
func (m *Metrics) RecordCompleted(bytes uint64, durationNs uint64) {
	m.JobsCompleted.Add(1)
	m.BytesTransposed.Add(bytes)
	m.TotalTransposeNs.Add(durationNs)
	m.TransposeCount.Add(1)
}

// RecordDelivered records a job removed from a Job Manager's table by poll.
func (m *Metrics) RecordDelivered() {
	m.JobsDelivered.Add(1)
}

// Snapshot is a point-in-time view of Metrics, safe to marshal.
type Snapshot struct {
	JobsReserved  uint64
	JobsRejected  uint64
	JobsCompleted uint64
	JobsDelivered uint64

	BytesTransposed uint64

	AvgTransposeNs uint64
	UptimeNs       uint64
}

// Snapshot takes a consistent point-in-time reading of the counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		JobsReserved:    m.JobsReserved.Load(),
		JobsRejected:    m.JobsRejected.Load(),
		JobsCompleted:   m.JobsCompleted.Load(),
		JobsDelivered:   m.JobsDelivered.Load(),
		BytesTransposed: m.BytesTransposed.Load(),
		UptimeNs:        uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}

	count := m.TransposeCount.Load()
	if count > 0 {
		snap.AvgTransposeNs = m.TotalTransposeNs.Load() / count
	}

	return snap
}
