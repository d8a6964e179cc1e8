package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies where in the pipeline something went wrong
type FailureKind string

const (
	FailureExtraction     FailureKind = "extraction"
	FailureClassification FailureKind = "classification"
	FailurePersistence    FailureKind = "persistence"
	FailureManifest       FailureKind = "manifest"
)

// Failure is a classified pipeline error with a short human-readable reason
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

// Error renders "<kind> failed: <reason>"
func (f *Failure) Error() string {
	if f.Reason == "" {
		return fmt.Sprintf("%s failed", f.Kind)
	}
	return fmt.Sprintf("%s failed: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err as a failure of the given kind.
// A deadline error becomes a "timed out after <d>" reason when timeout is known.
func NewFailure(kind FailureKind, err error, timeout time.Duration) *Failure {
	var existing *Failure
	if errors.As(err, &existing) && existing.Kind == kind {
		return existing
	}

	reason := "unknown error"
	switch {
	case errors.Is(err, context.DeadlineExceeded) && timeout > 0:
		reason = fmt.Sprintf("timed out after %s", timeout)
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	case err != nil:
		reason = err.Error()
	}
	return &Failure{Kind: kind, Reason: reason, Err: err}
}

// IsFailureKind reports whether err carries a Failure of kind
func IsFailureKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
