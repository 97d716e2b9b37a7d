// Package application holds calendar use-case helpers shared by booking
// subscribers and the import worker.
package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
)

// Backoff bounds retries of transient calendar failures.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultBackoff is four attempts starting at 200ms and capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 4, Base: 200 * time.Millisecond, Max: 5 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry runs fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends. Only transient calendar errors are retried.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !domain.IsTransient(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
