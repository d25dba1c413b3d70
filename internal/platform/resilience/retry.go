package resilience

import (
	"context"
	"errors"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy is the single retry shape used by every remote and storage call
// site; each site picks its own bounds.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
	Strategy    BackoffStrategy
	MaxDelay    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// AttemptFunc performs one attempt. Returning retry=false stops immediately
// with err (which may be nil on success).
type AttemptFunc func(ctx context.Context, attempt int) (retry bool, err error)

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Strategy == "" {
		p.Strategy = BackoffFixed
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Backoff returns the delay before the attempt following attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if p.Strategy != BackoffExponential || attempt <= 1 {
		return p.Delay
	}

	d := p.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Do runs fn until it succeeds, asks to stop, or MaxAttempts is reached. On
// exhaustion the returned error wraps both ErrRetriesExhausted and the last
// attempt error.
func (p RetryPolicy) Do(ctx context.Context, fn AttemptFunc) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		retry, err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if sleepErr := p.sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return errors.Join(ErrRetriesExhausted, lastErr)
}

// WithSleep replaces the sleeper; tests use it to skip real delays.
func (p RetryPolicy) WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryPolicy {
	p.sleep = fn
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
