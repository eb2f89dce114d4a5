// Package pipeline sequences documents and pages through rasterization, OCR,
// the output artifact and the progress checkpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
	"github.com/joseph-ayodele/ocrbatch/internal/encode"
	"github.com/joseph-ayodele/ocrbatch/internal/ingest"
	"github.com/joseph-ayodele/ocrbatch/internal/ocr"
	"github.com/joseph-ayodele/ocrbatch/internal/output"
	"github.com/joseph-ayodele/ocrbatch/internal/progress"
	"github.com/joseph-ayodele/ocrbatch/internal/raster"
	"github.com/joseph-ayodele/ocrbatch/internal/retry"
)

type Config struct {
	OutputDir string
	// RequestDelay is waited after every page except the last of a document.
	RequestDelay time.Duration
}

// Orchestrator runs one page at a time. It is the only writer of the
// progress store and the output artifacts.
type Orchestrator struct {
	cfg        Config
	rasterizer raster.Rasterizer
	encoder    encode.Encoder
	recognizer ocr.Recognizer
	policy     *retry.Policy
	store      progress.Store
	logger     *slog.Logger
	now        func() time.Time
	sleep      retry.Sleeper
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleeper replaces the inter-request wait.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

func NewOrchestrator(
	cfg Config,
	rasterizer raster.Rasterizer,
	encoder encode.Encoder,
	recognizer ocr.Recognizer,
	policy *retry.Policy,
	store progress.Store,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = retry.NewPolicy(10, 10*time.Second, logger)
	}
	o := &Orchestrator{
		cfg:        cfg,
		rasterizer: rasterizer,
		encoder:    encoder,
		recognizer: recognizer,
		policy:     policy,
		store:      store,
		logger:     logger,
		now:        time.Now,
		sleep:      retry.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunContext is the per-run state threaded through every step.
type RunContext struct {
	ID        string
	State     progress.RunState
	Logger    *slog.Logger
	StartedAt time.Time

	PagesProcessed int
	PagesEmpty     int
	Retries        int
	SaveFailures   int
	Completed      []string // documents completed by this run
	docErrs        map[string]error
}

// Run processes docs in identifier order until all are done or a halt
// condition stops the batch. A *HaltError is returned for halts; any other
// error means the run could not start.
func (o *Orchestrator) Run(ctx context.Context, docs []ingest.Document) (Summary, error) {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)
	ctx = common.WithLogger(ctx, logger)

	state, err := o.store.Load(ctx)
	if err != nil {
		logger.Error("pipeline.run.load_failed", "err", err)
		return Summary{}, fmt.Errorf("load progress: %w", err)
	}
	rc := &RunContext{
		ID:        runID,
		State:     state,
		Logger:    logger,
		StartedAt: o.now(),
		docErrs:   map[string]error{},
	}

	ordered := make([]ingest.Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	logger.Info("pipeline.run.start", "documents", len(ordered), "known", len(state), "max_retries", o.policy.MaxRetries())

	var halt *HaltError
	for _, doc := range ordered {
		if err := ctx.Err(); err != nil {
			halt = &HaltError{Reason: constants.HaltInterrupted, Document: doc.ID, Page: o.nextPage(rc, doc.ID), Cause: common.ErrInterrupted}
			break
		}
		err := o.processDocument(ctx, rc, doc)
		if err == nil {
			continue
		}
		if errors.As(err, &halt) {
			break
		}
		rc.docErrs[doc.ID] = err
		logger.Error("pipeline.document.skipped", "document", doc.ID, "err", err)
	}

	if halt != nil {
		o.persist(ctx, rc)
		logger.Warn("pipeline.run.halted",
			"reason", halt.Reason,
			"document", halt.Document,
			"page", halt.Page,
			"resumable", halt.Resumable(),
			"err", halt.Cause,
		)
		return o.summarize(rc, ordered, halt), halt
	}

	logger.Info("pipeline.run.done",
		"pages_processed", rc.PagesProcessed,
		"pages_empty", rc.PagesEmpty,
		"retries", rc.Retries,
		"elapsed_ms", o.now().Sub(rc.StartedAt).Milliseconds(),
	)
	return o.summarize(rc, ordered, nil), nil
}

func (o *Orchestrator) nextPage(rc *RunContext, id string) int {
	p, _ := rc.State.Get(id)
	return p.ProcessedPages + 1
}

// processDocument returns nil, a *HaltError, or a document-level error.
func (o *Orchestrator) processDocument(ctx context.Context, rc *RunContext, doc ingest.Document) error {
	logger := rc.Logger.With("document", doc.ID)

	if p, ok := rc.State.Get(doc.ID); ok && p.Completed {
		logger.Info("pipeline.document.already_completed", "pages", p.TotalPages)
		return nil
	}

	pages, err := o.rasterizer.Rasterize(ctx, doc.Path)
	if err != nil {
		if ctx.Err() != nil {
			return &HaltError{Reason: constants.HaltInterrupted, Document: doc.ID, Page: o.nextPage(rc, doc.ID), Cause: common.ErrInterrupted}
		}
		return fmt.Errorf("%s: %w", doc.ID, err)
	}
	defer func() {
		if cerr := pages.Close(); cerr != nil {
			logger.Warn("pipeline.document.cleanup_failed", "err", cerr)
		}
	}()

	total := pages.Len()
	prev, known := rc.State.Get(doc.ID)
	outPath := filepath.Join(o.cfg.OutputDir, constants.OutputName(doc.ID))
	p, err := rc.State.Begin(doc.ID, total, outPath, o.now())
	if err != nil {
		return err
	}
	if !known || prev.TotalPages != p.TotalPages || prev.OutputFile != p.OutputFile {
		o.persist(ctx, rc)
	}

	artPath := o.artifactPath(p.OutputFile)
	art, err := output.Open(artPath, doc.ID, p.ProcessedPages, o.now())
	if err != nil {
		return fmt.Errorf("%s: %w", doc.ID, err)
	}
	defer func() {
		if cerr := art.Close(); cerr != nil {
			logger.Warn("pipeline.document.artifact_close_failed", "err", cerr)
		}
	}()

	if p.ProcessedPages > 0 {
		logger.Info("pipeline.document.resume", "from_page", p.ProcessedPages+1, "total_pages", total)
	} else {
		logger.Info("pipeline.document.start", "total_pages", total, "output", artPath)
	}

	for i := p.ProcessedPages; i < total; i++ {
		pageNo := i + 1
		if ctx.Err() != nil {
			return &HaltError{Reason: constants.HaltInterrupted, Document: doc.ID, Page: pageNo, Cause: common.ErrInterrupted}
		}

		text, ok, err := o.recognizePage(ctx, rc, pages, doc.ID, i, total)
		if err != nil {
			return err
		}

		if err := art.WritePage(pageNo, text, ok); err != nil {
			return fmt.Errorf("%s: %w", doc.ID, err)
		}
		if _, err := rc.State.Advance(doc.ID); err != nil {
			return fmt.Errorf("%s: %w", doc.ID, err)
		}
		o.persist(ctx, rc)

		rc.PagesProcessed++
		if !ok {
			rc.PagesEmpty++
		}
		logger.Info("pipeline.page.done", "page", pageNo, "total_pages", total, "text", ok)

		if pageNo < total {
			if err := o.sleep(ctx, o.cfg.RequestDelay); err != nil {
				return &HaltError{Reason: constants.HaltInterrupted, Document: doc.ID, Page: pageNo + 1, Cause: common.ErrInterrupted}
			}
		}
	}

	if _, err := rc.State.Complete(doc.ID, o.now()); err != nil {
		return fmt.Errorf("%s: %w", doc.ID, err)
	}
	o.persist(ctx, rc)
	rc.Completed = append(rc.Completed, doc.ID)
	logger.Info("pipeline.document.completed", "pages", total, "output", artPath)
	return nil
}

// artifactPath resolves a stored output file. A bare file name, as older
// snapshots record it, lives in the output folder.
func (o *Orchestrator) artifactPath(stored string) string {
	if filepath.IsAbs(stored) || filepath.Dir(stored) != "." {
		return stored
	}
	return filepath.Join(o.cfg.OutputDir, stored)
}

// recognizePage returns the page text and whether OCR produced any. A page
// that cannot be encoded is recorded as failed without calling the service.
func (o *Orchestrator) recognizePage(ctx context.Context, rc *RunContext, pages raster.Pages, docID string, i, total int) (string, bool, error) {
	pageNo := i + 1
	logger := rc.Logger.With("document", docID, "page", pageNo)

	img, err := pages.Page(i)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w: page %d: %w", docID, common.ErrRasterization, pageNo, err)
	}
	payload, err := o.encoder.Encode(img)
	if err != nil {
		logger.Warn("pipeline.page.encode_failed", "err", err)
		return "", false, nil
	}

	label := fmt.Sprintf("%s %d/%d", docID, pageNo, total)
	res := o.policy.Run(ctx, o.recognizer, payload, label)
	rc.Retries += res.Retries

	if res.State == retry.Aborted {
		return "", false, &HaltError{Reason: res.Halt, Document: docID, Page: pageNo, Cause: res.Err()}
	}
	if res.Outcome.Kind != ocr.KindSuccess {
		logger.Warn("pipeline.page.empty", "reason", res.Outcome.Reason)
		return "", false, nil
	}
	return res.Outcome.Text, true, nil
}

// persist saves the snapshot. Failures are logged and the run continues in memory.
func (o *Orchestrator) persist(ctx context.Context, rc *RunContext) {
	if err := o.store.Save(ctx, rc.State); err != nil {
		rc.SaveFailures++
		if !errors.Is(err, common.ErrPersistence) {
			err = fmt.Errorf("%w: %w", common.ErrPersistence, err)
		}
		rc.Logger.Error("pipeline.progress.save_failed", "err", err, "failures", rc.SaveFailures)
	}
}
