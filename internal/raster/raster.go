// Package raster turns a PDF into an ordered set of page images.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// Pages is a rasterized document. Page images come back in document order.
type Pages interface {
	Len() int
	Page(i int) (image.Image, error)
	Close() error
}

// Rasterizer renders every page of a document, or fails for the whole document.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) (Pages, error)
}

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // fixed render resolution, default 144 (2x)
	WorkDir  string // parent for per-document temp dirs; "" = os.TempDir()
}

// PDFRasterizer renders pages with pdftoppm into a temp directory.
type PDFRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPDFRasterizer(cfg Config, logger *slog.Logger) *PDFRasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 144
	}
	return &PDFRasterizer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Rasterize renders all pages of the PDF at path. Errors wrap common.ErrRasterization;
// on error no pages are returned and the temp directory is already removed.
func (r *PDFRasterizer) Rasterize(ctx context.Context, path string) (Pages, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRasterization, err)
	}

	tmpDir, err := os.MkdirTemp(r.cfg.WorkDir, "ocrbatch-pp-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", common.ErrRasterization, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 144 -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, r.logger, "-r", strconv.Itoa(r.cfg.DPI), "-png", path, prefix)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", common.ErrRasterization, err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...) in numeric order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool {
		return pageNumberFromName(matches[i]) < pageNumberFromName(matches[j])
	})
	if len(matches) == 0 {
		cleanup()
		return nil, fmt.Errorf("%w: no pages rendered", common.ErrRasterization)
	}

	if want, err := countPages(path); err != nil {
		r.logger.Warn("page count cross-check unavailable", "path", path, "error", err)
	} else if want != len(matches) {
		cleanup()
		return nil, fmt.Errorf("%w: rendered %d of %d pages", common.ErrRasterization, len(matches), want)
	}

	r.logger.Info("rasterized document", "path", path, "pages", len(matches), "dpi", r.cfg.DPI)
	return &Document{Path: path, pages: matches, dir: tmpDir, cleanup: cleanup}, nil
}

// Document is a rendered PDF whose pages live as PNG files in a temp directory.
type Document struct {
	Path    string
	pages   []string
	dir     string
	cleanup func()
}

func (d *Document) Len() int { return len(d.pages) }

// Page decodes page i (0-based) and normalizes it to an opaque RGB image.
func (d *Document) Page(i int) (image.Image, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, len(d.pages))
	}
	f, err := os.Open(d.pages[i])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", i+1, err)
	}
	return ToRGB(img), nil
}

// Close removes the rendered page files.
func (d *Document) Close() error {
	if d.cleanup != nil {
		d.cleanup()
		d.cleanup = nil
	}
	return nil
}

// ToRGB flattens img onto a white background so the result carries no alpha.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// countPages reads the page count from the PDF structure.
func countPages(path string) (n int, err error) {
	defer func() {
		// the pdf reader panics on some malformed inputs
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", rec)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n = r.NumPage()
	if n <= 0 {
		return 0, errors.New("pdf reports no pages")
	}
	return n, nil
}

func pageNumberFromName(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx >= 0 {
		if v, err := strconv.Atoi(base[idx+1:]); err == nil {
			return v
		}
	}
	return 0
}
