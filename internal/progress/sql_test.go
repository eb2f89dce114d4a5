package progress

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openMemorySQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), "file::memory:", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStoreEmpty(t *testing.T) {
	s := openMemorySQLite(t)
	state, err := s.Load(context.Background())
	if err != nil || len(state) != 0 {
		t.Fatalf("Load = %v, %v", state, err)
	}
}

func TestSQLStoreSnapshotReplace(t *testing.T) {
	ctx := context.Background()
	s := openMemorySQLite(t)

	first := NewRunState()
	_, _ = first.Begin("a.pdf", 3, "out/a_ocr.txt", t0)
	_, _ = first.Advance("a.pdf")
	_, _ = first.Begin("gone.pdf", 1, "", t0)
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := RunState{"a.pdf": first["a.pdf"]}
	_, _ = second.Advance("a.pdf")
	_, _ = second.Advance("a.pdf")
	_, _ = second.Complete("a.pdf", t0.Add(time.Minute))
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("documents = %v, want only a.pdf", got.IDs())
	}
	p := got["a.pdf"]
	if p.TotalPages != 3 || p.ProcessedPages != 3 || !p.Completed || p.OutputFile != "out/a_ocr.txt" {
		t.Errorf("entry = %+v", p)
	}
	if p.StartedAt == nil || !p.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v", p.StartedAt)
	}
	if p.CompletedAt == nil || !p.CompletedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", p.CompletedAt)
	}
}

func TestSQLStoreManyDocuments(t *testing.T) {
	ctx := context.Background()
	s := openMemorySQLite(t)
	state := NewRunState()
	for i := 0; i < 2*insertBatch+7; i++ {
		_, _ = state.Begin(fmt.Sprintf("doc-%03d.pdf", i), i%4, "", t0)
	}
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(state) {
		t.Errorf("loaded %d documents, want %d", len(got), len(state))
	}
}

func TestSQLStoreFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "progress.db")
	logger := slog.New(slog.DiscardHandler)

	s, err := OpenSQLite(ctx, dsn, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, RunState{"a.pdf": {TotalPages: 4, ProcessedPages: 2}}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = OpenSQLite(ctx, dsn, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got["a.pdf"].ProcessedPages != 2 {
		t.Errorf("entry = %+v", got["a.pdf"])
	}
}
