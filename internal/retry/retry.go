// Package retry wraps calls to flaky external dependencies with bounded,
// jittered exponential backoff. Only errors explicitly marked transient are
// retried; permanent failures surface immediately.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls how many attempts a call gets and how the delay between
// them grows.
type Policy struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultPolicy is three attempts with delays of roughly 1s then 2s,
// each jittered by up to 20 percent.
var DefaultPolicy = Policy{
	Attempts:   3,
	BaseDelay:  time.Second,
	Multiplier: 2,
	Jitter:     0.2,
}

// transientError marks an error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it. Returns nil
// for a nil err.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries a transient marker anywhere in
// its chain.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs fn up to p.Attempts times, sleeping between attempts. A permanent
// error or a done context stops retrying immediately. The last error is
// returned when all attempts fail.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := p.BaseDelay
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == p.Attempts {
			break
		}
		if err := sleep(ctx, jittered(delay, p.Jitter)); err != nil {
			return zero, err
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return zero, lastErr
}

// jittered spreads d by a random factor in [1-j, 1+j].
func jittered(d time.Duration, j float64) time.Duration {
	if j <= 0 {
		return d
	}
	factor := 1 + j*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
