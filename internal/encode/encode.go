// Package encode turns page images into size-bounded JPEG payloads.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Encoder converts one page image into a transport payload.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	MIMEType() string
}

type Config struct {
	MaxDimension int // longest side bound in pixels, default 2048
	Quality      int // JPEG quality 1..100, default 85
}

// JPEGEncoder downscales oversized images (aspect preserved) and encodes JPEG.
// Output is deterministic for identical input and config.
type JPEGEncoder struct {
	cfg Config
}

func NewJPEGEncoder(cfg Config) *JPEGEncoder {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 2048
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}
	return &JPEGEncoder{cfg: cfg}
}

func (e *JPEGEncoder) MIMEType() string { return "image/jpeg" }

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode: nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("encode: empty image bounds %v", b)
	}

	w, h := FitWithin(b.Dx(), b.Dy(), e.cfg.MaxDimension)
	src := img
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: e.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin scales (w, h) so the longest side is at most max, keeping the
// aspect ratio. Sizes already inside the bound are returned unchanged.
func FitWithin(w, h, max int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if max <= 0 || longest <= max {
		return w, h
	}
	nw, nh := max, max
	if w >= h {
		nh = h * max / w
	} else {
		nw = w * max / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
