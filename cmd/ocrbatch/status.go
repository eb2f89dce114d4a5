package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocrbatch/internal/ingest"
	"github.com/joseph-ayodele/ocrbatch/internal/progress"
	"github.com/joseph-ayodele/ocrbatch/internal/report"
)

func newStatusCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored progress without calling the OCR service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return withCode(exitSetup, err)
			}
			logger := newLogger(cfg.Log, os.Stderr)

			store, err := progress.Open(cmd.Context(), cfg.Progress, logger, progress.ReadOnly())
			if err != nil {
				return withCode(exitSetup, err)
			}
			defer store.Close()
			state, err := store.Load(cmd.Context())
			if err != nil {
				return withCode(exitSetup, err)
			}

			var ids []string
			if scan, err := ingest.ScanDocuments(cfg.Input.Dir, ingest.ScanOptions{FallbackDir: cfg.Input.FallbackDir, SkipHidden: true}, logger); err == nil {
				ids = documentIDs(scan.Documents)
			} else {
				logger.Warn("input folder unavailable, reporting stored documents only", "error", err)
				ids = state.IDs()
			}
			return report.PrintSummary(stdout, report.NewOverview(ids, state, nil))
		},
	}
}

func newExportCmd(opts *options, stdout io.Writer) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored progress as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return withCode(exitSetup, err)
			}
			logger := newLogger(cfg.Log, os.Stderr)

			store, err := progress.Open(cmd.Context(), cfg.Progress, logger, progress.ReadOnly())
			if err != nil {
				return withCode(exitSetup, err)
			}
			defer store.Close()
			state, err := store.Load(cmd.Context())
			if err != nil {
				return withCode(exitSetup, err)
			}

			data, err := report.ExportXLSX(state, logger)
			if err != nil {
				return withCode(exitSetup, err)
			}
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return withCode(exitSetup, err)
				}
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return withCode(exitSetup, fmt.Errorf("write %s: %w", out, err))
			}
			fmt.Fprintf(stdout, "Exported %d documents to %s\n", len(state), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "ocr_progress.xlsx", "output XLSX path")
	return cmd
}
