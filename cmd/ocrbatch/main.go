package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// Process exit codes.
const (
	exitOK          = 0
	exitSetup       = 1
	exitResumable   = 2
	exitFatal       = 3
	exitInterrupted = 130
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// options holds flag values shared by every command.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	inputDir    string
	fallbackDir string
	outputDir   string

	progressBackend string
	progressFile    string
	progressDSN     string

	model        string
	baseURL      string
	timeout      time.Duration
	dpi          int
	maxDim       int
	quality      int
	maxRetries   int
	retryDelay   time.Duration
	requestDelay time.Duration
	pdftoppm     string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	root, _ := newRootCmdWithOptions(stdout)
	return root
}

func newRootCmdWithOptions(stdout io.Writer) (*cobra.Command, *options) {
	opts := &options{}
	root := &cobra.Command{
		Use:           "ocrbatch",
		Short:         "Resumable OCR of a folder of PDFs through Gemini",
		Long:          `Rasterizes every page of every PDF in a folder, sends each page to Gemini for OCR and writes one text file per PDF. Progress is checkpointed after every page so an interrupted or rate-limited run resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts, stdout)
		},
	}
	root.SetOut(stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "ocrbatch.yaml", "YAML settings file (optional unless set explicitly)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: json or text")
	pf.StringVar(&opts.progressBackend, "progress-backend", "", "checkpoint store: file, sqlite or postgres")
	pf.StringVar(&opts.progressFile, "progress-file", "", "checkpoint file for the file backend")
	pf.StringVar(&opts.progressDSN, "progress-dsn", "", "DSN for the sqlite or postgres backend")
	pf.StringVar(&opts.inputDir, "input", "", "folder containing the PDFs")
	pf.StringVar(&opts.fallbackDir, "fallback-input", "", "folder used when --input does not exist")

	root.AddCommand(newRunCmd(opts, stdout), newStatusCmd(opts, stdout), newExportCmd(opts, stdout))
	addRunFlags(root, opts)
	return root, opts
}

func addRunFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.outputDir, "output", "", "folder for the text files")
	f.StringVar(&opts.model, "model", "", "Gemini model")
	f.StringVar(&opts.baseURL, "base-url", "", "Gemini API base URL")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-request timeout")
	f.IntVar(&opts.dpi, "dpi", 0, "render resolution")
	f.IntVar(&opts.maxDim, "max-dim", 0, "longest image side sent to the service")
	f.IntVar(&opts.quality, "quality", 0, "JPEG quality 1-100")
	f.IntVar(&opts.maxRetries, "max-retries", 0, "retries per page for transient failures")
	f.DurationVar(&opts.retryDelay, "retry-delay", 0, "wait between retries")
	f.DurationVar(&opts.requestDelay, "request-delay", 0, "wait between pages")
	f.StringVar(&opts.pdftoppm, "pdftoppm", "", "pdftoppm binary")
}

// loadConfig layers environment, settings file and changed flags, in that order.
func loadConfig(cmd *cobra.Command, opts *options) (*common.Config, error) {
	cfg := common.LoadConfig()
	explicit := cmd.Flags().Changed("config")
	if err := cfg.ApplySettingsFile(opts.configPath, explicit); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	setInt := func(name string, dst *int, v int) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration, v time.Duration) {
		if flags.Changed(name) {
			*dst = v
		}
	}

	setString("log-level", &cfg.Log.Level, opts.logLevel)
	setString("log-format", &cfg.Log.Format, opts.logFormat)
	setString("progress-backend", &cfg.Progress.Backend, opts.progressBackend)
	setString("progress-file", &cfg.Progress.File, opts.progressFile)
	setString("progress-dsn", &cfg.Progress.DSN, opts.progressDSN)
	setString("input", &cfg.Input.Dir, opts.inputDir)
	setString("fallback-input", &cfg.Input.FallbackDir, opts.fallbackDir)
	setString("output", &cfg.Output.Dir, opts.outputDir)
	setString("model", &cfg.OCR.Model, opts.model)
	setString("base-url", &cfg.OCR.BaseURL, opts.baseURL)
	setDuration("timeout", &cfg.OCR.Timeout, opts.timeout)
	setInt("dpi", &cfg.Raster.DPI, opts.dpi)
	setInt("max-dim", &cfg.Encode.MaxDimension, opts.maxDim)
	setInt("quality", &cfg.Encode.Quality, opts.quality)
	setInt("max-retries", &cfg.Retry.MaxRetries, opts.maxRetries)
	setDuration("retry-delay", &cfg.Retry.Backoff, opts.retryDelay)
	setDuration("request-delay", &cfg.Retry.RequestDelay, opts.requestDelay)
	setString("pdftoppm", &cfg.Raster.Pdftoppm, opts.pdftoppm)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg common.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// exitCode maps a command error onto the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitSetup
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	err := newRootCmd(os.Stdout).Execute()
	code := exitCode(err)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			printError("Error: %v\n", err)
		}
	}
	os.Exit(code)
}
