package retry

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
	"github.com/joseph-ayodele/ocrbatch/internal/ocr"
)

// scripted returns outcomes in order and records the payloads it saw.
type scripted struct {
	outcomes []ocr.Outcome
	payloads [][]byte
	ctxErrs  []error
}

func (s *scripted) Recognize(ctx context.Context, payload []byte, _ string) ocr.Outcome {
	s.payloads = append(s.payloads, payload)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	out := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return out
}

type sleepLog struct{ waits []time.Duration }

func (l *sleepLog) sleep(_ context.Context, d time.Duration) error {
	l.waits = append(l.waits, d)
	return nil
}

func newPolicy(max int, l *sleepLog) *Policy {
	return NewPolicy(max, 10*time.Second, slog.New(slog.DiscardHandler), WithSleeper(l.sleep))
}

func repeat(o ocr.Outcome, n int) []ocr.Outcome {
	out := make([]ocr.Outcome, n)
	for i := range out {
		out[i] = o
	}
	return out
}

func TestTransientThenSuccessWithinBudget(t *testing.T) {
	const maxRetries = 10
	l := &sleepLog{}
	rec := &scripted{outcomes: append(repeat(ocr.Transient("503"), maxRetries-1), ocr.Success("text"))}

	res := newPolicy(maxRetries, l).Run(context.Background(), rec, []byte("payload"), "3")

	if res.State != Done || res.Outcome.Kind != ocr.KindSuccess || res.Outcome.Text != "text" {
		t.Fatalf("result = %+v", res)
	}
	if res.Retries != maxRetries-1 {
		t.Errorf("Retries = %d, want %d", res.Retries, maxRetries-1)
	}
	if res.Attempts != maxRetries {
		t.Errorf("Attempts = %d, want %d", res.Attempts, maxRetries)
	}
	if len(l.waits) != maxRetries-1 || l.waits[0] != 10*time.Second {
		t.Errorf("waits = %v", l.waits)
	}
	for i, p := range rec.payloads {
		if string(p) != "payload" {
			t.Errorf("attempt %d used payload %q", i, p)
		}
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestTransientExhaustsBudget(t *testing.T) {
	l := &sleepLog{}
	rec := &scripted{outcomes: []ocr.Outcome{ocr.Transient("500")}}

	res := newPolicy(3, l).Run(context.Background(), rec, nil, "1")

	if res.State != Aborted || res.Halt != constants.HaltRetriesExhausted {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 4 || res.Retries != 3 {
		t.Errorf("attempts/retries = %d/%d, want 4/3", res.Attempts, res.Retries)
	}
	if !errors.Is(res.Err(), common.ErrRetriesExhausted) || !errors.Is(res.Err(), common.ErrTransientService) {
		t.Errorf("Err() = %v", res.Err())
	}
	if !res.Halt.Resumable() {
		t.Error("exhausted retries must be resumable")
	}
}

func TestZeroBudgetAbortsOnFirstTransient(t *testing.T) {
	rec := &scripted{outcomes: []ocr.Outcome{ocr.Transient("503"), ocr.Success("late")}}
	res := newPolicy(0, &sleepLog{}).Run(context.Background(), rec, nil, "1")
	if res.State != Aborted || res.Attempts != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImmediateTerminalOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		outcome   ocr.Outcome
		wantState State
		wantHalt  constants.HaltReason
		wantErr   error
	}{
		{"success", ocr.Success("hi"), Done, "", nil},
		{"empty", ocr.Empty("blank"), Done, "", nil},
		{"rate limited", ocr.RateLimited("429"), Aborted, constants.HaltRateLimited, common.ErrRateLimited},
		{"fatal", ocr.Fatal("bad key"), Aborted, constants.HaltFatalCredential, common.ErrFatalCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &sleepLog{}
			res := newPolicy(5, l).Run(context.Background(), &scripted{outcomes: []ocr.Outcome{tt.outcome}}, nil, "1")
			if res.State != tt.wantState || res.Halt != tt.wantHalt {
				t.Fatalf("state/halt = %v/%q, want %v/%q", res.State, res.Halt, tt.wantState, tt.wantHalt)
			}
			if res.Attempts != 1 || res.Retries != 0 || len(l.waits) != 0 {
				t.Errorf("attempts=%d retries=%d waits=%v; terminal outcomes must not consume budget", res.Attempts, res.Retries, l.waits)
			}
			if tt.wantErr == nil && res.Err() != nil {
				t.Errorf("Err() = %v", res.Err())
			}
			if tt.wantErr != nil && !errors.Is(res.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", res.Err(), tt.wantErr)
			}
		})
	}
}

func TestTraceFollowsStateMachine(t *testing.T) {
	rec := &scripted{outcomes: []ocr.Outcome{ocr.Transient("503"), ocr.Success("ok")}}
	res := newPolicy(2, &sleepLog{}).Run(context.Background(), rec, nil, "1")

	want := []State{Idle, Attempting, Retrying, Attempting, Done}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Errorf("Trace = %v, want %v", res.Trace, want)
	}
}

func TestCancellationDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &scripted{outcomes: []ocr.Outcome{ocr.Transient("503"), ocr.Success("never")}}
	p := NewPolicy(5, time.Hour, slog.New(slog.DiscardHandler), WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}))

	res := p.Run(ctx, rec, nil, "1")

	if res.State != Aborted || res.Halt != constants.HaltInterrupted {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if !errors.Is(res.Err(), common.ErrInterrupted) {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestRequestsIgnoreCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &scripted{outcomes: []ocr.Outcome{ocr.Success("ok")}}

	res := newPolicy(1, &sleepLog{}).Run(ctx, rec, nil, "1")

	if res.State != Done {
		t.Fatalf("state = %v", res.State)
	}
	if rec.ctxErrs[0] != nil {
		t.Errorf("request context carried cancellation: %v", rec.ctxErrs[0])
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v", err)
	}
}
