// Package report renders run summaries and progress exports.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/progress"
)

var rule = strings.Repeat("=", 60)

// Entry is one document of the progress snapshot.
type Entry struct {
	ID       string
	Progress progress.DocumentProgress
}

// Overview is the data behind the end-of-run summary.
type Overview struct {
	InFolder       int
	Completed      int // documents in the folder that are completed
	CompletedNow   []string
	Entries        []Entry
	AllCompleted   bool
	PagesThisRun   int
	EmptyThisRun   int
	RetriesThisRun int
}

func (o Overview) Remaining() int { return o.InFolder - o.Completed }

// NewOverview combines the folder listing with the snapshot.
func NewOverview(docIDs []string, state progress.RunState, completedNow []string) Overview {
	ov := Overview{
		InFolder:     len(docIDs),
		CompletedNow: completedNow,
		AllCompleted: len(state) > 0,
	}
	for _, id := range docIDs {
		if p, ok := state.Get(id); ok && p.Completed {
			ov.Completed++
		}
	}
	for _, id := range state.IDs() {
		p := state[id]
		ov.Entries = append(ov.Entries, Entry{ID: id, Progress: p})
		if !p.Completed {
			ov.AllCompleted = false
		}
	}
	return ov
}

// StatusLabel is the human status of one entry.
func StatusLabel(p progress.DocumentProgress) string {
	if p.Status() == constants.DocStatusCompleted {
		return "✓ Completed"
	}
	return fmt.Sprintf("⏸ %d/%d pages", p.ProcessedPages, p.TotalPages)
}

// PrintSummary writes the processing summary.
func PrintSummary(w io.Writer, ov Overview) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nPROCESSING SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Total PDFs in folder: %d\n", ov.InFolder)
	fmt.Fprintf(&b, "Completed PDFs: %d\n", ov.Completed)
	fmt.Fprintf(&b, "Remaining PDFs: %d\n", ov.Remaining())
	if ov.PagesThisRun > 0 {
		fmt.Fprintf(&b, "Pages processed this session: %d (%d without text, %d retries)\n",
			ov.PagesThisRun, ov.EmptyThisRun, ov.RetriesThisRun)
	}

	if len(ov.CompletedNow) > 0 {
		b.WriteString("\nProcessed in this session:\n")
		for _, id := range ov.CompletedNow {
			fmt.Fprintf(&b, "  ✓ %s\n", id)
		}
	}
	if len(ov.Entries) > 0 {
		b.WriteString("\nDetailed status:\n")
		for _, e := range ov.Entries {
			fmt.Fprintf(&b, "  %s: %s\n", e.ID, StatusLabel(e.Progress))
		}
		if ov.AllCompleted {
			b.WriteString("\n🎉 All PDFs have been successfully processed!\n")
		} else {
			b.WriteString("\n⏸ Processing paused. Run again to continue from where you left off.\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Halt describes why a run stopped early.
type Halt struct {
	Reason    constants.HaltReason
	Document  string
	Page      int
	Resumable bool
}

func reasonText(r constants.HaltReason) string {
	switch r {
	case constants.HaltRateLimited:
		return "rate limit reached"
	case constants.HaltRetriesExhausted:
		return "service kept failing after all retries"
	case constants.HaltFatalCredential:
		return "API key rejected"
	case constants.HaltInterrupted:
		return "interrupted"
	}
	return string(r)
}

// PrintHalt writes the stop notice including whether a plain rerun resumes.
func PrintHalt(w io.Writer, h Halt) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n⚠ Stopping: %s", reasonText(h.Reason))
	if h.Document != "" {
		fmt.Fprintf(&b, " (%s, page %d)", h.Document, h.Page)
	}
	b.WriteString(". Progress has been saved.\n")
	if h.Resumable {
		b.WriteString("Resumable: run again to continue from the last completed page.\n")
	} else {
		b.WriteString("Not resumable as is: fix the credential before running again.\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
