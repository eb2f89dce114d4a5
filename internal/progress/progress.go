// Package progress holds the per-document checkpoint state and its durable stores.
package progress

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
)

var (
	ErrUnknownDocument   = errors.New("document has no progress entry")
	ErrTotalPagesChanged = errors.New("total pages differ from checkpoint")
	ErrAlreadyCompleted  = errors.New("document already completed")
	ErrPageOverflow      = errors.New("processed pages would exceed total pages")
	ErrNotFinished       = errors.New("document has unprocessed pages")
)

// timestampLayout matches naive ISO-8601 timestamps with optional fractional seconds.
const timestampLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a wall-clock time serialized as a zone-less ISO-8601 string.
// Zoned RFC 3339 values are accepted on input.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (t Timestamp) String() string {
	return t.Local().Format("2006-01-02T15:04:05.000000")
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp reads an RFC 3339 or zone-less ISO-8601 timestamp; the latter is local time.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(timestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts, nil
}

// DocumentProgress is the checkpoint of one document.
type DocumentProgress struct {
	TotalPages     int        `json:"total_pages"`
	ProcessedPages int        `json:"processed_pages"`
	Completed      bool       `json:"completed"`
	OutputFile     string     `json:"output_file"`
	StartedAt      *Timestamp `json:"start_time,omitempty"`
	CompletedAt    *Timestamp `json:"completion_time,omitempty"`
}

// Validate checks the record's internal invariants.
func (p DocumentProgress) Validate() error {
	switch {
	case p.TotalPages < 0:
		return fmt.Errorf("total_pages %d is negative", p.TotalPages)
	case p.ProcessedPages < 0:
		return fmt.Errorf("processed_pages %d is negative", p.ProcessedPages)
	case p.ProcessedPages > p.TotalPages:
		return fmt.Errorf("processed_pages %d exceeds total_pages %d", p.ProcessedPages, p.TotalPages)
	case p.Completed && p.ProcessedPages != p.TotalPages:
		return fmt.Errorf("completed with %d of %d pages", p.ProcessedPages, p.TotalPages)
	}
	return nil
}

// Status derives the report status of the record.
func (p DocumentProgress) Status() constants.DocStatus {
	switch {
	case p.Completed:
		return constants.DocStatusCompleted
	case p.ProcessedPages > 0:
		return constants.DocStatusPartial
	default:
		return constants.DocStatusPending
	}
}

// RunState maps document identifiers to their progress. It is owned by one
// orchestrator and mutated only through the methods below, which keep
// processed pages monotonic and total pages immutable.
type RunState map[string]DocumentProgress

func NewRunState() RunState {
	return RunState{}
}

// Clone returns a deep copy suitable for handing to a Store.
func (s RunState) Clone() RunState {
	out := make(RunState, len(s))
	for id, p := range s {
		if p.StartedAt != nil {
			p.StartedAt = NewTimestamp(p.StartedAt.Time)
		}
		if p.CompletedAt != nil {
			p.CompletedAt = NewTimestamp(p.CompletedAt.Time)
		}
		out[id] = p
	}
	return out
}

// IDs returns the document identifiers in lexicographic order.
func (s RunState) IDs() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s RunState) Get(id string) (DocumentProgress, bool) {
	p, ok := s[id]
	return p, ok
}

// unset reports a placeholder entry recorded before the page count was known.
func (p DocumentProgress) unset() bool {
	return p.TotalPages == 0 && p.ProcessedPages == 0 && !p.Completed
}

// Begin returns the entry for id, creating it on first encounter. An existing
// entry must agree on totalPages unless it is a placeholder with no page count.
func (s RunState) Begin(id string, totalPages int, outputFile string, now time.Time) (DocumentProgress, error) {
	if totalPages < 0 {
		return DocumentProgress{}, fmt.Errorf("%s: total pages %d is negative", id, totalPages)
	}
	if p, ok := s[id]; ok {
		if p.unset() {
			p.TotalPages = totalPages
			if p.StartedAt == nil || p.StartedAt.IsZero() {
				p.StartedAt = NewTimestamp(now)
			}
		}
		if p.TotalPages != totalPages {
			return p, fmt.Errorf("%w: %s checkpoint has %d, document has %d",
				ErrTotalPagesChanged, id, p.TotalPages, totalPages)
		}
		if p.OutputFile == "" {
			p.OutputFile = outputFile
		}
		s[id] = p
		return p, nil
	}
	p := DocumentProgress{
		TotalPages: totalPages,
		OutputFile: outputFile,
		StartedAt:  NewTimestamp(now),
	}
	s[id] = p
	return p, nil
}

// Advance records one more processed page for id.
func (s RunState) Advance(id string) (DocumentProgress, error) {
	p, ok := s[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	if p.Completed {
		return p, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	}
	if p.ProcessedPages >= p.TotalPages {
		return p, fmt.Errorf("%w: %s at %d/%d", ErrPageOverflow, id, p.ProcessedPages, p.TotalPages)
	}
	p.ProcessedPages++
	s[id] = p
	return p, nil
}

// Complete marks id finished. All pages must already be processed.
func (s RunState) Complete(id string, now time.Time) (DocumentProgress, error) {
	p, ok := s[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	if p.Completed {
		return p, nil
	}
	if p.ProcessedPages != p.TotalPages {
		return p, fmt.Errorf("%w: %s at %d/%d", ErrNotFinished, id, p.ProcessedPages, p.TotalPages)
	}
	p.Completed = true
	p.CompletedAt = NewTimestamp(now)
	s[id] = p
	return p, nil
}

// Totals summarizes the state for reports.
type Totals struct {
	Documents int
	Completed int
	Pages     int
	Processed int
}

func (s RunState) Totals() Totals {
	var t Totals
	for _, p := range s {
		t.Documents++
		if p.Completed {
			t.Completed++
		}
		t.Pages += p.TotalPages
		t.Processed += p.ProcessedPages
	}
	return t
}
