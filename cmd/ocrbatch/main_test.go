package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OCR_INPUT_DIR", "OCR_FALLBACK_DIR", "OCR_OUTPUT_DIR", "OCR_PROGRESS_BACKEND",
		"OCR_PROGRESS_FILE", "OCR_PROGRESS_DSN", "GOOGLE_API_KEY", "GEMINI_MODEL",
		"OCR_REQUEST_DELAY", "OCR_MAX_RETRIES", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_MODEL", "from-env")
	t.Setenv("OCR_REQUEST_DELAY", "7s")
	t.Setenv("OCR_MAX_RETRIES", "4")

	settings := filepath.Join(t.TempDir(), "settings.yaml")
	yaml := "ocr:\n  model: from-file\nretry:\n  request_delay: 5s\n"
	if err := os.WriteFile(settings, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root, opts := newRootCmdWithOptions(&out)
	runCmd, _, err := root.Find([]string{"run"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runCmd.ParseFlags([]string{"--config", settings, "--request-delay", "1s"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(runCmd, opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OCR.Model != "from-file" {
		t.Errorf("model = %q, settings file should override env", cfg.OCR.Model)
	}
	if cfg.Retry.RequestDelay != time.Second {
		t.Errorf("request delay = %v, flag should override file", cfg.Retry.RequestDelay)
	}
	if cfg.Retry.MaxRetries != 4 {
		t.Errorf("max retries = %d, env value lost", cfg.Retry.MaxRetries)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "status", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if exitCode(err) != exitSetup {
		t.Errorf("exit = %d, err = %v", exitCode(err), err)
	}
}

func TestRunWithoutAPIKeyIsSetupError(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	_, err := execute(t, "run", "--input", dir, "--progress-file", filepath.Join(dir, "p.json"))
	if exitCode(err) != exitSetup {
		t.Fatalf("exit = %d, err = %v", exitCode(err), err)
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
		t.Errorf("err = %v", err)
	}
}

func TestRunWithEmptyFolder(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", `["k1","k2"]`)
	dir := t.TempDir()
	out, err := execute(t, "run", "--input", dir, "--output", filepath.Join(dir, "out"), "--progress-file", filepath.Join(dir, "p.json"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "No PDF files found") {
		t.Errorf("output = %q", out)
	}
}

func TestStatusAndExport(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "pdfs")
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.MkdirAll(in, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(in, name), []byte("%PDF"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	snapshot := filepath.Join(dir, "ocr_progress.json")
	raw := `{"a.pdf": {"total_pages": 2, "processed_pages": 2, "completed": true, "output_file": "x"},
"b.pdf": {"total_pages": 5, "processed_pages": 3, "completed": false, "output_file": "y"}}`
	if err := os.WriteFile(snapshot, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "status", "--input", in, "--progress-file", snapshot)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Total PDFs in folder: 2", "Completed PDFs: 1", "b.pdf: ⏸ 3/5 pages"} {
		if !strings.Contains(out, want) {
			t.Errorf("status lacks %q:\n%s", want, out)
		}
	}

	xlsx := filepath.Join(dir, "reports", "progress.xlsx")
	out, err = execute(t, "export", "--progress-file", snapshot, "--out", xlsx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if st, err := os.Stat(xlsx); err != nil || st.Size() == 0 {
		t.Errorf("workbook not written: %v", err)
	}
	if !strings.Contains(out, "Exported 2 documents") {
		t.Errorf("export output = %q", out)
	}
}

func TestStatusDoesNotMoveCorruptSnapshot(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "ocr_progress.json")
	if err := os.WriteFile(snapshot, []byte(`{"a.pdf": {"total_`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "status", "--input", filepath.Join(dir, "missing"), "--progress-file", snapshot); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := execute(t, "export", "--progress-file", snapshot, "--out", filepath.Join(dir, "p.xlsx")); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(snapshot); err != nil {
		t.Fatalf("snapshot moved: %v", err)
	}
	matches, _ := filepath.Glob(snapshot + ".corrupt-*")
	if len(matches) != 0 {
		t.Errorf("quarantine files created: %v", matches)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitSetup},
		{withCode(haltExitCode(constants.HaltRateLimited), nil), exitResumable},
		{withCode(haltExitCode(constants.HaltRetriesExhausted), nil), exitResumable},
		{withCode(haltExitCode(constants.HaltFatalCredential), nil), exitFatal},
		{withCode(haltExitCode(constants.HaltInterrupted), nil), exitInterrupted},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
