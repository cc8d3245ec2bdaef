package transposed

import "github.com/behrlich/transposed/internal/constants"

// Re-exported package-level constants.
const (
	DefaultWorkerCount      = constants.DefaultWorkerCount
	AdmissionThresholdBytes = constants.AdmissionThresholdBytes
	ListenAddress           = constants.ListenAddress
)
