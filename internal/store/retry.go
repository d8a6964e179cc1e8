package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/sethvargo/go-retry"
)

// Backend is the write side of a result store
type Backend interface {
	Insert(ctx context.Context, rec *model.VerdictRecord) error
	SaveRun(ctx context.Context, summary model.RunSummary) error
}

// Retrying retries failed writes with Fibonacci backoff before giving up
type Retrying struct {
	next    Backend
	retries uint64
	base    time.Duration
	logger  *slog.Logger
}

// WithRetry wraps next. retries is the number of extra attempts after the
// first; base is the first backoff step.
func WithRetry(next Backend, retries uint64, base time.Duration, logger *slog.Logger) *Retrying {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, retries: retries, base: base, logger: logger}
}

// Insert writes rec, retrying transient failures. Every attempt reuses
// rec.ID, so a duplicate id on a retry means an earlier attempt committed
// and only its acknowledgement was lost.
func (r *Retrying) Insert(ctx context.Context, rec *model.VerdictRecord) error {
	attempts := 0
	return r.do(ctx, "insert verdict", func(ctx context.Context) error {
		attempts++
		err := r.next.Insert(ctx, rec)
		if attempts > 1 && errors.Is(err, ErrDuplicateID) {
			r.logger.Debug("verdict already stored by an earlier attempt", "id", rec.ID, "attempt", attempts)
			return nil
		}
		return err
	})
}

// SaveRun writes summary, retrying transient failures
func (r *Retrying) SaveRun(ctx context.Context, summary model.RunSummary) error {
	return r.do(ctx, "save run", func(ctx context.Context) error {
		return r.next.SaveRun(ctx, summary)
	})
}

func (r *Retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(r.retries, retry.NewFibonacci(r.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		r.logger.Debug("store write failed, retrying", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		r.logger.Warn(op+" gave up", "attempts", attempt, "error", err)
	}
	return err
}

// shouldRetry treats context cancellation, deadlines and duplicate ids as
// permanent
func shouldRetry(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrDuplicateID):
		return false
	}
	return true
}
