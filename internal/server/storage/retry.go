package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds retries of transient driver failures.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts  uint64
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used when configuration leaves the policy empty.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked by Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// RetryValue runs fn with exponential backoff while it fails with transient
// errors. Once the policy is exhausted the last error is returned wrapped in
// common.ErrBackendUnavailable; other errors are returned as is.
func RetryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	b := retry.WithMaxRetries(p.Attempts, retry.NewExponential(p.BaseDelay))

	v, err := retry.DoValue(ctx, b, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if IsTransient(err) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	if IsTransient(err) {
		var zero T
		return zero, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	return v, err
}

// Retry is RetryValue for functions without a result.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
