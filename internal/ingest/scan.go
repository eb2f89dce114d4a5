// Package ingest discovers the documents of a batch.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/ocrbatch/constants"
	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// Document is one input file. ID is its base name and keys the progress snapshot.
type Document struct {
	ID   string
	Path string
	Size int64
}

type ScanOptions struct {
	// FallbackDir is scanned when the primary root does not exist.
	FallbackDir string
	// IncludeExts overrides constants.AllowedExtensions.
	IncludeExts []string
	SkipHidden  bool
}

type ScanStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
}

// Scan is the result of ScanDocuments.
type Scan struct {
	Dir       string
	Documents []Document
	Stats     ScanStats
}

// ResolveInputDir returns root if it is a directory, else fallback if that is one.
func ResolveInputDir(root, fallback string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", common.NewAppError("INPUT_ERROR", "input directory is required", common.ErrInvalidInput)
	}
	if isDir(root) {
		return root, nil
	}
	if fallback != "" && isDir(fallback) {
		return fallback, nil
	}
	if fallback != "" {
		return "", common.NewAppError("INPUT_ERROR",
			fmt.Sprintf("neither %q nor %q is a directory", root, fallback), common.ErrInvalidInput)
	}
	return "", common.NewAppError("INPUT_ERROR", fmt.Sprintf("%q is not a directory", root), common.ErrInvalidInput)
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// ScanDocuments lists the matching files directly under the resolved input
// directory, sorted by name. Subdirectories are not descended into.
func ScanDocuments(root string, opts ScanOptions, logger *slog.Logger) (Scan, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := ResolveInputDir(root, opts.FallbackDir)
	if err != nil {
		return Scan{}, err
	}
	if dir != root {
		logger.Warn("input directory missing, using fallback", "input_dir", root, "fallback_dir", dir)
	}

	exts := constants.AllowedExtensions
	if len(opts.IncludeExts) > 0 {
		exts = map[string]struct{}{}
		for _, e := range opts.IncludeExts {
			if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
				exts[e] = struct{}{}
			}
		}
	}

	scan := Scan{Dir: dir}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if path == dir {
			return walkErr
		}
		scan.Stats.Scanned++
		if walkErr != nil {
			logger.Warn("ingest.scan.entry_failed", "path", path, "err", walkErr)
			scan.Stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		if opts.SkipHidden && isHidden(path) {
			scan.Stats.Skipped++
			return nil
		}
		if _, ok := exts[constants.NormalizeExt(filepath.Ext(path))]; !ok || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			scan.Stats.Skipped++
			return nil
		}
		scan.Stats.Matched++
		scan.Documents = append(scan.Documents, Document{ID: d.Name(), Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return Scan{}, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.Slice(scan.Documents, func(i, j int) bool { return scan.Documents[i].ID < scan.Documents[j].ID })
	logger.Info("ingest.scan.ok", "dir", dir, "scanned", scan.Stats.Scanned, "documents", len(scan.Documents))
	return scan, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
