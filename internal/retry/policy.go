// Package retry drives one page through OCR attempts until it is done or the run must stop.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
	"github.com/joseph-ayodele/ocrbatch/internal/ocr"
)

// State of the per-page retry machine.
type State int

const (
	Idle State = iota
	Attempting
	Retrying
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Retrying:
		return "retrying"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result is the terminal state of one page.
type Result struct {
	State    State // Done or Aborted
	Outcome  ocr.Outcome
	Attempts int
	Retries  int                  // transient failures that were retried
	Halt     constants.HaltReason // set when State == Aborted
	Trace    []State
}

// Err is nil for Done and a taxonomy error for Aborted.
func (r Result) Err() error {
	if r.State != Aborted {
		return nil
	}
	switch r.Halt {
	case constants.HaltRetriesExhausted:
		return fmt.Errorf("%w after %d attempts: %w", common.ErrRetriesExhausted, r.Attempts, r.Outcome.Err())
	case constants.HaltInterrupted:
		return common.ErrInterrupted
	}
	return r.Outcome.Err()
}

// Policy retries transient failures a bounded number of times with a fixed backoff.
type Policy struct {
	maxRetries int
	backoff    time.Duration
	sleep      Sleeper
	logger     *slog.Logger
}

type Option func(*Policy)

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.sleep = s
		}
	}
}

func NewPolicy(maxRetries int, backoff time.Duration, logger *slog.Logger, opts ...Option) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	p := &Policy{maxRetries: maxRetries, backoff: backoff, sleep: Sleep, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Policy) MaxRetries() int { return p.maxRetries }

// Run attempts payload until a terminal state. Every attempt reuses the same payload.
// Requests are issued on a context detached from ctx's cancellation so an
// in-flight request is never interrupted; ctx is only observed between attempts.
func (p *Policy) Run(ctx context.Context, rec ocr.Recognizer, payload []byte, pageLabel string) Result {
	res := Result{State: Idle, Trace: []State{Idle}}
	reqCtx := context.WithoutCancel(ctx)

	move := func(s State) {
		res.State = s
		res.Trace = append(res.Trace, s)
	}

	for {
		move(Attempting)
		res.Attempts++
		res.Outcome = rec.Recognize(reqCtx, payload, pageLabel)

		switch res.Outcome.Kind {
		case ocr.KindSuccess, ocr.KindEmpty:
			move(Done)
			return res

		case ocr.KindTransient:
			if res.Retries >= p.maxRetries {
				p.logger.Error("retry budget exhausted",
					"page", pageLabel, "attempts", res.Attempts, "reason", res.Outcome.Reason)
				res.Halt = constants.HaltRetriesExhausted
				move(Aborted)
				return res
			}
			move(Retrying)
			res.Retries++
			p.logger.Warn("transient ocr failure, retrying",
				"page", pageLabel,
				"retry", res.Retries,
				"max_retries", p.maxRetries,
				"backoff", p.backoff.String(),
				"reason", res.Outcome.Reason,
			)
			if err := p.sleep(ctx, p.backoff); err != nil {
				res.Halt = constants.HaltInterrupted
				move(Aborted)
				return res
			}

		case ocr.KindRateLimited:
			p.logger.Warn("rate limit reached", "page", pageLabel, "reason", res.Outcome.Reason)
			res.Halt = constants.HaltRateLimited
			move(Aborted)
			return res

		case ocr.KindFatal:
			p.logger.Error("credential rejected", "page", pageLabel, "reason", res.Outcome.Reason)
			res.Halt = constants.HaltFatalCredential
			move(Aborted)
			return res

		default:
			res.Outcome = ocr.Empty(fmt.Sprintf("unclassified outcome %v", res.Outcome.Kind))
			move(Done)
			return res
		}
	}
}
