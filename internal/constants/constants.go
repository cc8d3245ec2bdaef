// Package constants holds process-wide defaults and limits for the
// transposition service.
package constants

// Default configuration constants
const (
	// DefaultWorkerCount is the worker-group size used by start when the
	// client passes 0 (meaning "use the hint").
	DefaultWorkerCount = 4

	// AdmissionThresholdBytes is the headroom withheld from every
	// reservation admission check, leaving room for other processes and
	// this server's own working set.
	AdmissionThresholdBytes = 500_000_000

	// ListenAddress is the address the server always binds to; the wire
	// protocol has no notion of an externally reachable bind address.
	ListenAddress = "127.0.0.1"
)

// Wire frame limits
const (
	// MaxErrorMessageLen is the largest UTF-8 message an Error response
	// body can carry (the length prefix is a single byte).
	MaxErrorMessageLen = 255
)
