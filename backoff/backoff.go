// Package backoff computes delays between attempts and retries calls
// that talk to the outside world (the door relay, the mail provider).
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy returns the delay before attempt n (1-indexed, where 1 is the
// first retry after the initial failure).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant waits the same interval every time.
func Constant(interval time.Duration) Strategy {
	return Func(func(int) time.Duration { return interval })
}

// Exponential doubles from initial up to limit.
func Exponential(initial, limit time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return capped(initial, limit, attempt)
	})
}

// Jittered picks uniformly in [0, exponential delay] so that workers
// retrying the same dependency spread out.
func Jittered(initial, limit time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		d := capped(initial, limit, attempt)
		return time.Duration(rand.Float64() * float64(d)) //nolint:gosec // jitter does not need crypto rand
	})
}

func capped(initial, limit time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if limit > 0 && d > float64(limit) {
		return limit
	}
	return time.Duration(d)
}

// Default is used by the workflow runner between failed step attempts:
// jittered exponential from 1s to 5m.
func Default() Strategy {
	return Jittered(time.Second, 5*time.Minute)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx is
// done, or maxAttempts calls have been made. The last error is returned
// unwrapped.
func Retry(ctx context.Context, s Strategy, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxAttempts {
			return err
		}
		t := time.NewTimer(s.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
}
