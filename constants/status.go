package constants

// DocStatus is the derived status of a document in the progress snapshot.
// It is computed for reports, never stored.
type DocStatus string

const (
	DocStatusPending   DocStatus = "PENDING"   // no page processed yet
	DocStatusPartial   DocStatus = "PARTIAL"   // some pages processed, resumable
	DocStatusCompleted DocStatus = "COMPLETED" // all pages processed and artifact finalized
)

// HaltReason names why a run stopped before the end of the document list.
type HaltReason string

const (
	HaltRateLimited      HaltReason = "RATE_LIMITED"
	HaltRetriesExhausted HaltReason = "RETRIES_EXHAUSTED"
	HaltFatalCredential  HaltReason = "FATAL_CREDENTIAL"
	HaltInterrupted      HaltReason = "INTERRUPTED"
)

// Resumable reports whether restarting the process continues correctly without an external fix.
func (r HaltReason) Resumable() bool {
	return r != HaltFatalCredential
}
