package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// Pipeline error taxonomy. Page-level errors are resolved by the retry policy,
// document-level errors skip one document, run-level errors halt the batch.
var (
	// ErrRasterization is document-level: skip the document, continue the batch.
	ErrRasterization = errors.New("rasterization failed")
	// ErrOutputArtifact is document-level: the text artifact cannot be opened or written.
	ErrOutputArtifact = errors.New("output artifact unusable")
	// ErrTransientService is page-level: retried with a fixed backoff.
	ErrTransientService = errors.New("transient service failure")
	// ErrEmptyResult is page-level and non-fatal: recorded as a placeholder.
	ErrEmptyResult = errors.New("empty ocr result")
	// ErrRateLimited is run-level and resumable.
	ErrRateLimited = errors.New("rate limited")
	// ErrRetriesExhausted is run-level and resumable; it is handled like ErrRateLimited.
	ErrRetriesExhausted = errors.New("retry budget exhausted")
	// ErrFatalCredential is run-level and needs an external fix before resuming.
	ErrFatalCredential = errors.New("invalid credential")
	// ErrInterrupted is run-level and resumable.
	ErrInterrupted = errors.New("interrupted")
	// ErrPersistence is logged, never fatal: the run continues in memory.
	ErrPersistence = errors.New("progress persistence failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
