package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
	"github.com/joseph-ayodele/ocrbatch/internal/encode"
	"github.com/joseph-ayodele/ocrbatch/internal/ingest"
	"github.com/joseph-ayodele/ocrbatch/internal/ocr/gemini"
	"github.com/joseph-ayodele/ocrbatch/internal/pipeline"
	"github.com/joseph-ayodele/ocrbatch/internal/progress"
	"github.com/joseph-ayodele/ocrbatch/internal/raster"
	"github.com/joseph-ayodele/ocrbatch/internal/report"
	"github.com/joseph-ayodele/ocrbatch/internal/retry"
)

func newRunCmd(opts *options, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "OCR every pending page, resuming from the checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts, stdout)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func runBatch(cmd *cobra.Command, opts *options, stdout io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return withCode(exitSetup, err)
	}
	if err := cfg.ValidateForRun(); err != nil {
		return withCode(exitSetup, err)
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, index, err := common.SelectAPIKey(cfg.OCR.APIKey, nil)
	if err != nil {
		return withCode(exitSetup, err)
	}
	if index >= 0 {
		logger.Info("selected API key from list", "index", index)
	}
	logger.Debug("api key", "prefix", common.MaskKey(key))

	scan, err := ingest.ScanDocuments(cfg.Input.Dir, ingest.ScanOptions{
		FallbackDir: cfg.Input.FallbackDir,
		SkipHidden:  true,
	}, logger)
	if err != nil {
		return withCode(exitSetup, err)
	}
	if len(scan.Documents) == 0 {
		fmt.Fprintf(stdout, "No PDF files found in '%s' folder\n", scan.Dir)
		return nil
	}
	fmt.Fprintf(stdout, "Found %d PDF files to process in %s\n", len(scan.Documents), scan.Dir)

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return withCode(exitSetup, fmt.Errorf("create output dir: %w", err))
	}

	store, err := progress.Open(ctx, cfg.Progress, logger)
	if err != nil {
		return withCode(exitSetup, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close progress store", "error", err)
		}
	}()

	encoder := encode.NewJPEGEncoder(encode.Config{
		MaxDimension: cfg.Encode.MaxDimension,
		Quality:      cfg.Encode.Quality,
	})
	client := gemini.NewClient(gemini.Config{
		APIKey:   key,
		BaseURL:  cfg.OCR.BaseURL,
		Model:    cfg.OCR.Model,
		Prompt:   cfg.OCR.Prompt,
		MIMEType: encoder.MIMEType(),
		Timeout:  cfg.OCR.Timeout,
	}, logger)
	logger.Info("ocr client ready", "model", client.Model(), "base_url", cfg.OCR.BaseURL)
	orch := pipeline.NewOrchestrator(
		pipeline.Config{OutputDir: cfg.Output.Dir, RequestDelay: cfg.Retry.RequestDelay},
		raster.NewPDFRasterizer(raster.Config{Pdftoppm: cfg.Raster.Pdftoppm, DPI: cfg.Raster.DPI}, logger),
		encoder,
		client,
		retry.NewPolicy(cfg.Retry.MaxRetries, cfg.Retry.Backoff, logger),
		store,
		logger,
	)

	sum, runErr := orch.Run(ctx, scan.Documents)
	var halt *pipeline.HaltError
	if runErr != nil && !errors.As(runErr, &halt) {
		return withCode(exitSetup, runErr)
	}

	if halt != nil {
		_ = report.PrintHalt(stdout, report.Halt{
			Reason:    halt.Reason,
			Document:  halt.Document,
			Page:      halt.Page,
			Resumable: halt.Resumable(),
		})
	}
	ov := report.NewOverview(documentIDs(scan.Documents), sum.State, sum.CompletedNow)
	ov.PagesThisRun, ov.EmptyThisRun, ov.RetriesThisRun = sum.PagesProcessed, sum.PagesEmpty, sum.Retries
	if err := report.PrintSummary(stdout, ov); err != nil {
		logger.Warn("failed to print summary", "error", err)
	}

	if halt == nil {
		return nil
	}
	return withCode(haltExitCode(halt.Reason), nil)
}

func haltExitCode(r constants.HaltReason) int {
	switch r {
	case constants.HaltInterrupted:
		return exitInterrupted
	case constants.HaltFatalCredential:
		return exitFatal
	}
	return exitResumable
}

func documentIDs(docs []ingest.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
