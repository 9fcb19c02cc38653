package constants

// RunStatus is the canonical status for rows in the run journal.
type RunStatus string

// Stable values (store these exact strings in the journal).
const (
	RunStatusOK       RunStatus = "OK"       // extraction completed
	RunStatusDegraded RunStatus = "DEGRADED" // completed with sentinel-filled chunks
	RunStatusFailed   RunStatus = "FAILED"   // terminal failure
)
