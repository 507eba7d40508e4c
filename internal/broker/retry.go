package broker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds the attempts made for one logical call.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
	Multiplier  float64       // growth factor between delays
	Jitter      float64       // +/- fraction applied to each delay
}

// DefaultRetryPolicy returns 3 attempts with 500ms, 1s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Delay returns the backoff before attempt n+1 (n starts at 1), without
// jitter.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) jittered(n int) time.Duration {
	d := p.Delay(n)
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	f := 1 + p.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}

// Permanent marks an error that retrying cannot fix.
type Permanent interface {
	Permanent() bool
}

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var p Permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. onRetry, if set, is called before each
// backoff sleep.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; ; n++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || n >= attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if onRetry != nil {
			onRetry(n, err)
		}

		t := time.NewTimer(p.jittered(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
