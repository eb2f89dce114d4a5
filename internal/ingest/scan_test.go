package ingest

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

var quiet = slog.New(slog.DiscardHandler)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestScanDocumentsFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", ".hidden.pdf", "sub/c.pdf"} {
		touch(t, filepath.Join(root, name))
	}

	scan, err := ScanDocuments(root, ScanOptions{SkipHidden: true}, quiet)
	if err != nil {
		t.Fatalf("ScanDocuments: %v", err)
	}
	if got, want := ids(scan.Documents), []string{"a.PDF", "b.pdf"}; !reflect.DeepEqual(got, want) {
		t.Errorf("documents = %v, want %v", got, want)
	}
	if scan.Dir != root {
		t.Errorf("Dir = %s", scan.Dir)
	}
	if scan.Documents[0].Path != filepath.Join(root, "a.PDF") || scan.Documents[0].Size == 0 {
		t.Errorf("document = %+v", scan.Documents[0])
	}
}

func TestScanDocumentsFallback(t *testing.T) {
	base := t.TempDir()
	fallback := filepath.Join(base, "pdfs_compressed")
	touch(t, filepath.Join(fallback, "x.pdf"))

	scan, err := ScanDocuments(filepath.Join(base, "pdfs"), ScanOptions{FallbackDir: fallback}, quiet)
	if err != nil {
		t.Fatalf("ScanDocuments: %v", err)
	}
	if scan.Dir != fallback || len(scan.Documents) != 1 {
		t.Errorf("scan = %+v", scan)
	}
}

func TestScanDocumentsPrefersPrimary(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "pdfs", "p.pdf"))
	touch(t, filepath.Join(base, "pdfs_compressed", "f.pdf"))

	scan, err := ScanDocuments(filepath.Join(base, "pdfs"), ScanOptions{FallbackDir: filepath.Join(base, "pdfs_compressed")}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(scan.Documents); !reflect.DeepEqual(got, []string{"p.pdf"}) {
		t.Errorf("documents = %v", got)
	}
}

func TestScanDocumentsNoInput(t *testing.T) {
	base := t.TempDir()
	_, err := ScanDocuments(filepath.Join(base, "a"), ScanOptions{FallbackDir: filepath.Join(base, "b")}, quiet)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INPUT_ERROR" {
		t.Errorf("err = %#v", err)
	}
}

func TestScanDocumentsCustomExtensions(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.pdf"))
	touch(t, filepath.Join(root, "b.tiff"))

	scan, err := ScanDocuments(root, ScanOptions{IncludeExts: []string{".TIFF"}}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(scan.Documents); !reflect.DeepEqual(got, []string{"b.tiff"}) {
		t.Errorf("documents = %v", got)
	}
}
