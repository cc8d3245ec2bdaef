// Package memoracle implements the Memory Admission Oracle: a
// process-wide capability reporting available physical memory, consumed
// by job reservation to gate admission.
package memoracle

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/behrlich/transposed/internal/constants"
)

// Oracle reports currently available physical memory, in bytes.
// Implementations must serialize their internal refresh so concurrent
// callers observe a consistent snapshot; the oracle itself is stateless
// from the caller's point of view.
type Oracle interface {
	AvailableBytes() (uint64, error)
}

// sysOracle reads available memory via the kernel's sysinfo(2) call.
type sysOracle struct {
	mu sync.Mutex
}

// NewSysOracle returns an Oracle backed by unix.Sysinfo.
func NewSysOracle() Oracle {
	return &sysOracle{}
}

// AvailableBytes returns free RAM as reported by sysinfo, scaled by the
// unit field (Sysinfo reports free memory in units of Unit bytes, not
// always 1).
func (o *sysOracle) AvailableBytes() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Freeram) * unit, nil
}

// FakeOracle is a test double reporting a fixed available-bytes value,
// adjustable mid-test to exercise admission failure paths.
type FakeOracle struct {
	mu        sync.Mutex
	available uint64
}

// NewFakeOracle returns a FakeOracle reporting available bytes.
func NewFakeOracle(available uint64) *FakeOracle {
	return &FakeOracle{available: available}
}

// AvailableBytes implements Oracle.
func (f *FakeOracle) AvailableBytes() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, nil
}

// SetAvailable updates the value future AvailableBytes calls report.
func (f *FakeOracle) SetAvailable(available uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = available
}

// Admit reports whether a reservation of n bytes may proceed: it is
// granted iff available - THRESHOLD - n >= 0. Admission is advisory, not
// reserved — the allocation still races against other admitted
// reservations, but the threshold leaves enough headroom to make that
// race benign in practice.
func Admit(o Oracle, n uint64) (bool, error) {
	available, err := o.AvailableBytes()
	if err != nil {
		return false, err
	}
	reserve := uint64(constants.AdmissionThresholdBytes)
	if available < reserve {
		return false, nil
	}
	return available-reserve >= n, nil
}
