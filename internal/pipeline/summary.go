package pipeline

import (
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/ingest"
	"github.com/joseph-ayodele/ocrbatch/internal/progress"
)

// DocumentReport is the end-of-run view of one input document.
type DocumentReport struct {
	ID             string
	TotalPages     int
	ProcessedPages int
	Status         constants.DocStatus
	Err            error // document-level error of this run, if any
}

// Summary describes one run.
type Summary struct {
	RunID          string
	Documents      []DocumentReport
	CompletedNow   []string
	PagesProcessed int
	PagesEmpty     int
	Retries        int
	SaveFailures   int
	Elapsed        time.Duration
	Halt           *HaltError
	State          progress.RunState
}

func (s Summary) Completed() int {
	n := 0
	for _, d := range s.Documents {
		if d.Status == constants.DocStatusCompleted {
			n++
		}
	}
	return n
}

func (s Summary) Remaining() int { return len(s.Documents) - s.Completed() }

func (o *Orchestrator) summarize(rc *RunContext, docs []ingest.Document, halt *HaltError) Summary {
	sum := Summary{
		RunID:          rc.ID,
		PagesProcessed: rc.PagesProcessed,
		PagesEmpty:     rc.PagesEmpty,
		Retries:        rc.Retries,
		SaveFailures:   rc.SaveFailures,
		Elapsed:        o.now().Sub(rc.StartedAt),
		CompletedNow:   append([]string(nil), rc.Completed...),
		Halt:           halt,
		State:          rc.State.Clone(),
	}
	for _, d := range docs {
		r := DocumentReport{ID: d.ID, Status: constants.DocStatusPending, Err: rc.docErrs[d.ID]}
		if p, ok := rc.State.Get(d.ID); ok {
			r.TotalPages = p.TotalPages
			r.ProcessedPages = p.ProcessedPages
			r.Status = p.Status()
		}
		sum.Documents = append(sum.Documents, r)
	}
	return sum
}
