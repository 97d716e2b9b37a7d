package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	// DefaultRetention keeps slots for a month after they end.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultRetentionInterval is the time between cleanup runs.
	DefaultRetentionInterval = time.Hour
)

// RetentionWorkerConfig configures the retention worker.
type RetentionWorkerConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// DefaultRetentionWorkerConfig returns the default configuration.
func DefaultRetentionWorkerConfig() RetentionWorkerConfig {
	return RetentionWorkerConfig{
		Retention: DefaultRetention,
		Interval:  DefaultRetentionInterval,
	}
}

// RetentionWorker deletes availability slots that ended more than the
// retention period ago.
type RetentionWorker struct {
	slots   domain.Repository
	clock   sharedDomain.Clock
	config  RetentionWorkerConfig
	logger  *slog.Logger
	running atomic.Bool
	stopCh  chan struct{}
}

// NewRetentionWorker creates a new retention worker.
func NewRetentionWorker(
	slots domain.Repository,
	clock sharedDomain.Clock,
	config RetentionWorkerConfig,
	logger *slog.Logger,
) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.Interval <= 0 {
		config.Interval = DefaultRetentionInterval
	}
	return &RetentionWorker{
		slots:  slots,
		clock:  clock,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Run starts the worker and blocks until the context is cancelled or Stop is called.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("availability retention worker started",
		"interval", w.config.Interval,
		"retention", w.config.Retention,
	)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("availability retention worker stopped (context cancelled)")
			return ctx.Err()
		case <-w.stopCh:
			w.logger.Info("availability retention worker stopped (stop signal)")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *RetentionWorker) Stop() {
	if w.running.Load() {
		close(w.stopCh)
	}
}

// IsRunning reports whether Run is active.
func (w *RetentionWorker) IsRunning() bool {
	return w.running.Load()
}

// RunOnce performs a single cleanup and returns the number of deleted slots.
func (w *RetentionWorker) RunOnce(ctx context.Context) int64 {
	cutoff := w.clock.Now().Add(-w.config.Retention)
	deleted, err := w.slots.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to delete ended availability slots", "cutoff", cutoff, "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("deleted ended availability slots", "count", deleted, "cutoff", cutoff)
	}
	return deleted
}
