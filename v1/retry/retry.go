// Package retry provides the bounded retry combinator used for lock
// acquisition and connection fallback.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Default: 1
	MaxAttempts int

	// Wait is the fixed pause between tries.
	Wait time.Duration
}

// Notify is called before each pause with the attempt that just failed (1-based).
type Notify func(attempt int, err error, wait time.Duration)

// ErrExhausted marks the error returned once every attempt failed on a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError carries the last retryable error and the attempts spent on it.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return ErrExhausted.Error() + ": " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Err} }

// Do runs op until it succeeds, returns an error retryable rejects, the
// context ends or the policy runs out of attempts. A nil retryable retries
// every error.
//
// It returns the number of attempts made. When attempts run out on a
// retryable error the result is an *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error, notify Notify) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Wait), uint64(p.MaxAttempts-1)),
		ctx,
	)

	attempts := 0
	var lastRetryable error
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		lastRetryable = err
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, b, onRetry)
	if err == nil {
		return attempts, nil
	}
	if lastRetryable != nil && errors.Is(err, lastRetryable) && attempts >= p.MaxAttempts {
		return attempts, &ExhaustedError{Attempts: attempts, Err: lastRetryable}
	}
	return attempts, err
}
