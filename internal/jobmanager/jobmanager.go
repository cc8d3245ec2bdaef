// Package jobmanager implements the per-connection Job Manager: a table
// mapping small integer ids to Jobs, with reserve/fill/start/poll
// operations driving each Job through its state machine.
package jobmanager

import (
	"io"
	"sync"
	"time"

	"github.com/behrlich/transposed"
	"github.com/behrlich/transposed/internal/job"
	"github.com/behrlich/transposed/internal/logging"
	"github.com/behrlich/transposed/internal/matrixtype"
	"github.com/behrlich/transposed/internal/memoracle"
	"github.com/behrlich/transposed/internal/metrics"
	"github.com/behrlich/transposed/internal/transpose"
)

// Manager is a per-connection registry of Jobs. There is no global job
// registry — every TCP connection owns exactly one Manager, and closing
// the connection abandons its jobs (any still-running worker group is
// simply left to finish; see the connection handler).
type Manager struct {
	connID string
	oracle memoracle.Oracle
	mtr    *metrics.Metrics
	log    *logging.Logger

	mu     sync.Mutex
	jobs   map[uint64]*job.Job
	nextID uint64
}

// New constructs a Manager for one connection. mtr may be nil, in which
// case metrics recording is skipped; log defaults to the package-level
// logger if nil.
func New(connID string, oracle memoracle.Oracle, mtr *metrics.Metrics, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		connID: connID,
		oracle: oracle,
		mtr:    mtr,
		log:    log.WithConn(connID),
		jobs:   make(map[uint64]*job.Job),
		nextID: 1,
	}
}

// Reserve admits a new dim x dim matrix of the given type, allocates its
// zero-initialized buffer, and returns the id under which it is stored.
// Ids are issued monotonically starting at 1 and are never reused within
// a connection.
func (m *Manager) Reserve(mt matrixtype.MatrixType, dim uint32) (uint64, *transposed.Error) {
	n, ok := mt.BufferLen(dim)
	if !ok {
		return 0, transposed.NewConnError("RESERVE", m.connID, transposed.ErrCodeProtocol, "matrix dimension too large")
	}

	admitted, err := memoracle.Admit(m.oracle, n)
	if err != nil {
		m.log.Warnf("admission oracle refresh failed: %v", err)
		return 0, transposed.NewConnError("RESERVE", m.connID, transposed.ErrCodeInternal, "admission oracle failure: "+err.Error())
	}
	if !admitted {
		if m.mtr != nil {
			m.mtr.RecordRejected()
		}
		return 0, transposed.NewConnError("RESERVE", m.connID, transposed.ErrCodeInsufficientMemory, "insufficient memory to reserve matrix")
	}

	buf := make([]byte, n)
	j := job.New(mt, dim, buf)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.jobs[id] = j
	m.mu.Unlock()

	if m.mtr != nil {
		m.mtr.RecordReserve()
	}
	m.log.WithJob(id).Debugf("reserved %s matrix, dim=%d, bytes=%d", mt, dim, n)
	return id, nil
}

// Fill reads exactly s*d*d bytes from r into the job's buffer. The job's
// status is unchanged by Fill.
func (m *Manager) Fill(id uint64, r io.Reader) *transposed.Error {
	j, ok := m.lookup(id)
	if !ok {
		return transposed.NewJobError("CALC", m.connID, id, transposed.ErrCodeNoSuchID, "no such id")
	}

	buf, ok := j.TakeBuffer()
	if !ok {
		return transposed.NewJobError("CALC", m.connID, id, transposed.ErrCodeInternal, "buffer slot already taken")
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		j.ReinsertBuffer(buf)
		return transposed.NewJobError("CALC", m.connID, id, transposed.ErrCodeIO, "short read filling matrix: "+err.Error())
	}

	j.ReinsertBuffer(buf)
	return nil
}

// Start transitions the job to Running and dispatches its worker group.
// If w is nonzero it overrides the job's worker hint. Start returns as
// soon as the worker group has been scheduled — it does not block on
// completion.
func (m *Manager) Start(id uint64, w uint32) *transposed.Error {
	j, ok := m.lookup(id)
	if !ok {
		return transposed.NewJobError("CALC", m.connID, id, transposed.ErrCodeNoSuchID, "no such id")
	}

	if w > 0 {
		j.SetWorkerHint(w)
	}
	workers := int(j.WorkerHint())
	if workers < 1 {
		workers = 1
	}

	j.MarkRunning()
	buf, ok := j.TakeBuffer()
	if !ok {
		panic("jobmanager: buffer slot already taken entering Running")
	}

	elemSize := j.ElementType().ByteSize()
	dim := int(j.Dimension())

	go m.runWorkerGroup(id, j, buf, elemSize, dim, workers)

	return nil
}

// runWorkerGroup runs the transpose engine and publishes the result. It
// touches only this job's status and buffer slot, never the manager's id
// table — the table is mutated only by the connection handler goroutine
// that calls Reserve/Poll.
func (m *Manager) runWorkerGroup(id uint64, j *job.Job, buf []byte, elemSize, dim, workers int) {
	jlog := m.log.WithJob(id)
	start := time.Now()
	err := transpose.Transpose(buf, elemSize, dim, workers)
	if err != nil {
		jlog.Errorf("worker panic recovered: %v", err)
		j.MarkFault(buf)
		return
	}
	j.Complete(buf)
	if m.mtr != nil {
		m.mtr.RecordCompleted(uint64(len(buf)), uint64(time.Since(start).Nanoseconds()))
	}
	jlog.Debugf("completed, %d bytes, %dw", len(buf), workers)
}

// PollResult is the outcome of a Poll call.
type PollResult struct {
	Status job.Status
	Exists bool
	Bytes  []byte
}

// Poll reports a job's status. If the id is absent, Exists is false (the
// wire-level response for this is NoData). If the job is Completed, Poll
// removes it from the table (single-delivery) and returns its bytes. If
// the job's worker group faulted, Poll returns a structured Error instead
// of a normal status.
func (m *Manager) Poll(id uint64) (PollResult, *transposed.Error) {
	j, ok := m.lookup(id)
	if !ok {
		return PollResult{}, nil
	}

	if j.Fault() {
		return PollResult{}, transposed.NewJobError("POLL", m.connID, id, transposed.ErrCodeInternal, "transpose worker failed")
	}

	status := j.Status()
	if status != job.Completed {
		return PollResult{Status: status, Exists: true}, nil
	}

	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()

	buf, ok := j.TakeBuffer()
	if !ok {
		panic("jobmanager: Completed job has no buffer in slot")
	}

	if m.mtr != nil {
		m.mtr.RecordDelivered()
	}
	return PollResult{Status: job.Completed, Exists: true, Bytes: buf}, nil
}

func (m *Manager) lookup(id uint64) (*job.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}
