// Package breaker wraps a calendar adapter in a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/sony/gobreaker/v2"
)

// Config configures the breaker.
type Config struct {
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureThreshold trips the breaker after this many consecutive
	// transient failures.
	FailureThreshold uint32
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// StateObserver is notified when the breaker changes state.
type StateObserver func(name string, from, to string)

// Adapter decorates a calendar adapter with a circuit breaker. Only
// transient failures count against it; an open circuit is reported as a
// transient failure.
type Adapter struct {
	next    domain.Adapter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewAdapter wraps next.
func NewAdapter(next domain.Adapter, name string, cfg Config, logger *slog.Logger, observer StateObserver) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("calendar circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if observer != nil {
				observer(name, from.String(), to.String())
			}
		},
	}
	return &Adapter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the current breaker state.
func (a *Adapter) State() string {
	return a.breaker.State().String()
}

func (a *Adapter) execute(fn func() (any, error)) (any, error) {
	result, err := a.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.Transient(err)
	}
	return result, err
}

// IsFree implements domain.Adapter.
func (a *Adapter) IsFree(ctx context.Context, slot sharedDomain.TimeSlot) (bool, error) {
	result, err := a.execute(func() (any, error) {
		return a.next.IsFree(ctx, slot)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// CreateEvent implements domain.Adapter.
func (a *Adapter) CreateEvent(ctx context.Context, req domain.EventRequest) (string, error) {
	result, err := a.execute(func() (any, error) {
		return a.next.CreateEvent(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// DeleteEvent implements domain.Adapter.
func (a *Adapter) DeleteEvent(ctx context.Context, externalEventID string) error {
	_, err := a.execute(func() (any, error) {
		return nil, a.next.DeleteEvent(ctx, externalEventID)
	})
	return err
}

var _ domain.Adapter = (*Adapter)(nil)
