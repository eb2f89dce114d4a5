// Package output writes the per-document text artifact, one section per page.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

const (
	headerPrefix = "=== OCR Results for "
	headerSuffix = " ===\n"
	generatedFmt = "Generated on: %s\n\n"
	timeLayout   = "2006-01-02 15:04:05"
)

// Separator closes every page section.
var Separator = "\n\n" + strings.Repeat("=", 50) + "\n\n"

// PageMarker opens the section of 1-based page n.
func PageMarker(n int) string {
	return "--- Page " + strconv.Itoa(n) + " ---\n"
}

// Header is the artifact preamble for docID.
func Header(docID string, now time.Time) string {
	return headerPrefix + docID + headerSuffix + fmt.Sprintf(generatedFmt, now.Format(timeLayout))
}

// Section renders one page. Failed pages carry the placeholder instead of text.
func Section(page int, text string, ok bool) string {
	var b strings.Builder
	b.WriteString(PageMarker(page))
	if ok && text != "" {
		b.WriteString(text)
	} else {
		b.WriteString(constants.FailedPagePlaceholder)
	}
	b.WriteString(Separator)
	return b.String()
}

// Artifact is an open text artifact positioned after its last complete section.
type Artifact struct {
	f    *os.File
	path string
	next int
}

// Open prepares the artifact for writing page resumeAt+1. With resumeAt == 0
// the file is recreated with a fresh header. Otherwise the existing file must
// hold at least resumeAt sections; anything after section resumeAt is dropped.
func Open(path, docID string, resumeAt int, now time.Time) (*Artifact, error) {
	if resumeAt < 0 {
		return nil, fmt.Errorf("%w: negative resume point %d", common.ErrOutputArtifact, resumeAt)
	}
	if resumeAt == 0 {
		return create(path, docID, now)
	}
	return resume(path, resumeAt)
}

func create(path, docID string, now time.Time) (*Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrOutputArtifact, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrOutputArtifact, err)
	}
	a := &Artifact{f: f, path: path, next: 1}
	if err := a.write(Header(docID, now)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return a, nil
}

func resume(path string, processed int) (*Artifact, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s is missing but %d pages are checkpointed", common.ErrOutputArtifact, path, processed)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrOutputArtifact, err)
	}
	fail := func(err error) (*Artifact, error) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", common.ErrOutputArtifact, path, err)
	}

	data, err := readAll(f)
	if err != nil {
		return fail(err)
	}
	end, err := SectionEnd(data, processed)
	if err != nil {
		return fail(err)
	}
	if end < int64(len(data)) {
		if err := f.Truncate(end); err != nil {
			return fail(err)
		}
	}
	if _, err := f.Seek(end, 0); err != nil {
		return fail(err)
	}
	return &Artifact{f: f, path: path, next: processed + 1}, nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SectionEnd returns the byte offset just past section n of an artifact.
// n == 0 addresses the end of the header.
func SectionEnd(data []byte, n int) (int64, error) {
	s := string(data)
	if !strings.HasPrefix(s, headerPrefix) {
		return 0, errors.New("header not found")
	}
	hdr := strings.Index(s, "\n\n")
	if hdr < 0 {
		return 0, errors.New("header incomplete")
	}
	cursor := hdr + 2

	for page := 1; page <= n; page++ {
		marker := PageMarker(page)
		if !strings.HasPrefix(s[cursor:], marker) {
			return 0, fmt.Errorf("section %d not found, artifact holds %d", page, page-1)
		}
		end, ok := sectionClose(s, cursor+len(marker), PageMarker(page+1), page == n)
		if !ok {
			return 0, fmt.Errorf("section %d is incomplete", page)
		}
		cursor = end
	}
	return int64(cursor), nil
}

// sectionClose finds the separator ending the section whose body starts at from.
// The separator must be followed by the next page marker or, for the last
// wanted section, by end of file or a torn prefix of the next marker.
func sectionClose(s string, from int, nextMarker string, last bool) (int, bool) {
	for i := from; i <= len(s); {
		j := strings.Index(s[i:], Separator)
		if j < 0 {
			return 0, false
		}
		end := i + j + len(Separator)
		rest := s[end:]
		switch {
		case strings.HasPrefix(rest, nextMarker):
			return end, true
		case last && strings.HasPrefix(nextMarker, rest):
			return end, true
		}
		i = i + j + 1
	}
	return 0, false
}

// Next is the 1-based page number the artifact expects next.
func (a *Artifact) Next() int { return a.next }

func (a *Artifact) Path() string { return a.path }

// WritePage appends the section for page and syncs it to disk. Pages must be
// written in order.
func (a *Artifact) WritePage(page int, text string, ok bool) error {
	if page != a.next {
		return fmt.Errorf("%w: page %d written out of order, expected %d", common.ErrOutputArtifact, page, a.next)
	}
	if err := a.write(Section(page, text, ok)); err != nil {
		return err
	}
	a.next++
	return nil
}

func (a *Artifact) write(s string) error {
	if _, err := a.f.WriteString(s); err != nil {
		return fmt.Errorf("%w: write %s: %w", common.ErrOutputArtifact, a.path, err)
	}
	if err := a.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", common.ErrOutputArtifact, a.path, err)
	}
	return nil
}

func (a *Artifact) Close() error {
	if a == nil || a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
