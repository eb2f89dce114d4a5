package pipeline

import (
	"fmt"

	"github.com/joseph-ayodele/ocrbatch/constants"
)

// HaltError stops the whole batch. The checkpoint is durable when it is returned.
type HaltError struct {
	Reason   constants.HaltReason
	Document string
	Page     int // 1-based page that did not complete
	Cause    error
}

func (e *HaltError) Error() string {
	msg := fmt.Sprintf("batch halted (%s)", e.Reason)
	if e.Document != "" {
		msg += fmt.Sprintf(" at %s page %d", e.Document, e.Page)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *HaltError) Unwrap() error { return e.Cause }

// Resumable reports whether rerunning continues without an external fix.
func (e *HaltError) Resumable() bool { return e.Reason.Resumable() }
