package transposed

import (
	"errors"
	"fmt"
)

// Error represents a structured service error with request context.
type Error struct {
	Op     string    // Operation that failed (e.g., "RESERVE", "POLL")
	ConnID string    // Connection identifier (empty if not applicable)
	JobID  uint64    // Job id (0 if not applicable)
	Code   ErrorCode // High-level error category
	Msg    string    // Human-readable message
	Inner  error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.ConnID != "" {
		parts = append(parts, fmt.Sprintf("conn=%s", e.ConnID))
	}

	if e.JobID != 0 {
		parts = append(parts, fmt.Sprintf("job=%d", e.JobID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("transposed: %s (%s)", msg, parts[0])
	}

	return fmt.Sprintf("transposed: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents the high-level error categories of §7's taxonomy.
type ErrorCode string

const (
	ErrCodeProtocol           ErrorCode = "protocol error"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
	ErrCodeNoSuchID           ErrorCode = "no such id"
	ErrCodeIO                 ErrorCode = "i/o error"
	// ErrCodeInternal marks server-side failures that are not the client's
	// fault: an admission-oracle failure, a buffer slot found already taken,
	// or a transpose worker that panicked. The connection handler sends
	// these to the client as an Error frame. Violated state-machine
	// invariants (buffer missing on Completed, an out-of-order transition)
	// panic instead of returning this code.
	ErrCodeInternal ErrorCode = "internal error"
)

// Error constructors

// NewError creates a new structured error with no connection or job context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewConnError creates a new connection-scoped structured error.
func NewConnError(op string, connID string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		ConnID: connID,
		Code:   code,
		Msg:    msg,
	}
}

// NewJobError creates a new job-scoped structured error.
func NewJobError(op string, connID string, jobID uint64, code ErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		ConnID: connID,
		JobID:  jobID,
		Code:   code,
		Msg:    msg,
	}
}

// WrapError wraps an existing error with service context, preserving a
// structured inner error's fields and falling back to ErrCodeIO for bare
// errors (the closest this service gets to the teacher's syscall-errno
// mapping, since the wire codec's only "external" I/O is the TCP stream).
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if te, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			ConnID: te.ConnID,
			JobID:  te.JobID,
			Code:   te.Code,
			Msg:    te.Msg,
			Inner:  te.Inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeIO,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode reports whether err is a structured Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
