// Package ocr defines the page outcome contract between OCR clients and the retry policy.
package ocr

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// Kind classifies the result of one OCR attempt.
type Kind int

const (
	KindSuccess Kind = iota + 1
	KindEmpty
	KindTransient
	KindFatal
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindRateLimited:
		return "rate_limited"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the classified result of one OCR attempt. It is never persisted.
type Outcome struct {
	Kind   Kind
	Text   string // set for KindSuccess only
	Reason string // failure detail for logs
}

func Success(text string) Outcome       { return Outcome{Kind: KindSuccess, Text: text} }
func Empty(reason string) Outcome       { return Outcome{Kind: KindEmpty, Reason: reason} }
func Transient(reason string) Outcome   { return Outcome{Kind: KindTransient, Reason: reason} }
func Fatal(reason string) Outcome       { return Outcome{Kind: KindFatal, Reason: reason} }
func RateLimited(reason string) Outcome { return Outcome{Kind: KindRateLimited, Reason: reason} }

// Err maps the outcome onto the pipeline error taxonomy; nil for success.
func (o Outcome) Err() error {
	var base error
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindEmpty:
		base = common.ErrEmptyResult
	case KindTransient:
		base = common.ErrTransientService
	case KindFatal:
		base = common.ErrFatalCredential
	case KindRateLimited:
		base = common.ErrRateLimited
	default:
		base = common.ErrInternal
	}
	if o.Reason == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, o.Reason)
}

// Recognizer performs exactly one OCR round-trip for one page payload.
// Implementations never retry and never touch progress state.
type Recognizer interface {
	Recognize(ctx context.Context, payload []byte, pageLabel string) Outcome
}
