// Package job defines the Job value object and its Reserved -> Running ->
// Completed state machine.
package job

import (
	"sync"
	"sync/atomic"

	"github.com/behrlich/transposed/internal/constants"
	"github.com/behrlich/transposed/internal/matrixtype"
)

// Status is one of a Job's three stored states. NoData is not stored in a
// Job; it is the Job Manager's response for an id that is absent from its
// table.
type Status uint8

const (
	Reserved Status = iota
	Running
	Completed
)

// String returns the status's wire-facing name.
func (s Status) String() string {
	switch s {
	case Reserved:
		return "Reserved"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	default:
		return "unknown"
	}
}

// bufferSlot is a move-only ownership cell: it either holds the buffer or
// has had it taken. Take and Reinsert are serialized by mu so that at most
// one party can hold the buffer at a time.
type bufferSlot struct {
	mu    sync.Mutex
	taken bool
	buf   []byte
}

func newBufferSlot(buf []byte) *bufferSlot {
	return &bufferSlot{buf: buf}
}

// Take removes the buffer from the slot. ok is false if the slot was
// already taken (a programmer error — callers must not race Take calls
// against the state machine's own invariants).
func (s *bufferSlot) Take() (buf []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return nil, false
	}
	s.taken = true
	buf, s.buf = s.buf, nil
	return buf, true
}

// Reinsert puts buf back into the slot. It must happen-before any
// subsequent release of the job's Completed status (see Job.Complete).
func (s *bufferSlot) Reinsert(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken = false
	s.buf = buf
}

// Job is one reserved matrix buffer plus its status and worker hint. It is
// logically shared between the Job Manager and the worker supervisor that
// runs its transpose; the supervisor holds a reference only until it has
// reinserted the buffer and released Completed.
type Job struct {
	status      atomic.Uint32
	workerHint  atomic.Uint32
	elementType matrixtype.MatrixType
	dimension   uint32
	slot        *bufferSlot

	// fault is set if a worker panicked during transpose; Completed is never
	// stored in that case. See internal/jobmanager for how poll surfaces
	// this as ErrCodeInternal rather than handing back a partially
	// transposed buffer.
	fault atomic.Bool
}

// New constructs a Reserved job holding buf as given. The caller sizes buf
// to s*d*d, where s = elementType.ByteSize(); New does not check or clear
// it.
func New(elementType matrixtype.MatrixType, dimension uint32, buf []byte) *Job {
	j := &Job{
		elementType: elementType,
		dimension:   dimension,
		slot:        newBufferSlot(buf),
	}
	j.workerHint.Store(uint32(constants.DefaultWorkerCount))
	j.status.Store(uint32(Reserved))
	return j
}

// ElementType returns the job's immutable matrix element type.
func (j *Job) ElementType() matrixtype.MatrixType { return j.elementType }

// Dimension returns the job's immutable square-matrix side length.
func (j *Job) Dimension() uint32 { return j.dimension }

// Status atomically loads the job's current status.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// WorkerHint atomically loads the worker-count hint.
func (j *Job) WorkerHint() uint32 {
	return j.workerHint.Load()
}

// SetWorkerHint atomically stores a new worker-count hint. Only start
// calls this, and only when the client passed a nonzero count.
func (j *Job) SetWorkerHint(w uint32) {
	j.workerHint.Store(w)
}

// TakeBuffer removes the buffer from the job's slot. ok is false if the
// slot was already taken.
func (j *Job) TakeBuffer() (buf []byte, ok bool) {
	return j.slot.Take()
}

// ReinsertBuffer puts buf back into the job's slot.
func (j *Job) ReinsertBuffer(buf []byte) {
	j.slot.Reinsert(buf)
}

// MarkRunning transitions Reserved -> Running. It panics if called from
// any other state: an out-of-order transition is a programmer error (see
// the state machine invariants).
func (j *Job) MarkRunning() {
	if !j.status.CompareAndSwap(uint32(Reserved), uint32(Running)) {
		panic("job: MarkRunning called outside Reserved state")
	}
}

// Complete reinserts buf and transitions Running -> Completed. The
// reinsert happens-before the status store, satisfying the
// happens-before requirement that a poll observing Completed is
// guaranteed to find the buffer present: the store to Completed is the
// release; poll's load is the acquire.
func (j *Job) Complete(buf []byte) {
	j.slot.Reinsert(buf)
	if !j.status.CompareAndSwap(uint32(Running), uint32(Completed)) {
		panic("job: Complete called outside Running state")
	}
}

// MarkFault records that a worker panicked mid-transpose. The job's
// buffer is still reinserted (workers' disjoint pair sets mean a failing
// worker leaves some pairs unswapped, not the slot empty), but the status
// is never advanced to Completed, so poll must consult Fault alongside
// Status.
func (j *Job) MarkFault(buf []byte) {
	j.slot.Reinsert(buf)
	j.fault.Store(true)
}

// Fault reports whether a worker panicked during this job's transpose.
func (j *Job) Fault() bool {
	return j.fault.Load()
}
