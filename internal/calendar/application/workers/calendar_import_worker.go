package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	availability "github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// DefaultImportInterval is the default interval between import cycles.
const DefaultImportInterval = 5 * time.Minute

// DefaultLookAheadDays is how far ahead to look for events.
const DefaultLookAheadDays = 31

// CalendarImportWorkerConfig configures the import worker.
type CalendarImportWorkerConfig struct {
	Interval      time.Duration
	LookAheadDays int
	// TZ labels imported busy slots.
	TZ string
}

// DefaultImportWorkerConfig returns the default configuration.
func DefaultImportWorkerConfig() CalendarImportWorkerConfig {
	return CalendarImportWorkerConfig{
		Interval:      DefaultImportInterval,
		LookAheadDays: DefaultLookAheadDays,
		TZ:            "UTC",
	}
}

// ImportResult summarizes one import cycle.
type ImportResult struct {
	Imported int
	Moved    int
	Removed  int
	Skipped  int
}

// CalendarImportWorker mirrors busy periods of the external calendar into the
// availability store as blocked slots, so admins see them next to their
// own availability.
type CalendarImportWorker struct {
	importer domain.Importer
	slots    availability.Repository
	clock    sharedDomain.Clock
	ids      sharedDomain.IDGenerator
	config   CalendarImportWorkerConfig
	logger   *slog.Logger
	running  atomic.Bool
	stopCh   chan struct{}
}

// NewCalendarImportWorker creates a new calendar import worker.
func NewCalendarImportWorker(
	importer domain.Importer,
	slots availability.Repository,
	clock sharedDomain.Clock,
	ids sharedDomain.IDGenerator,
	config CalendarImportWorkerConfig,
	logger *slog.Logger,
) *CalendarImportWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultImportInterval
	}
	if config.LookAheadDays <= 0 {
		config.LookAheadDays = DefaultLookAheadDays
	}
	if config.TZ == "" {
		config.TZ = "UTC"
	}
	return &CalendarImportWorker{
		importer: importer,
		slots:    slots,
		clock:    clock,
		ids:      ids,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run starts the worker and blocks until context is cancelled or Stop() is called.
func (w *CalendarImportWorker) Run(ctx context.Context) error {
	if w.importer == nil {
		w.logger.Warn("calendar importer not configured, worker will not start")
		return nil
	}

	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("calendar import worker started",
		"interval", w.config.Interval,
		"look_ahead_days", w.config.LookAheadDays,
	)

	// Run immediately on start
	w.runImportCycle(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("calendar import worker stopped (context cancelled)")
			return ctx.Err()
		case <-w.stopCh:
			w.logger.Info("calendar import worker stopped (stop signal)")
			return nil
		case <-ticker.C:
			w.runImportCycle(ctx)
		}
	}
}

// Stop signals the worker to stop gracefully.
func (w *CalendarImportWorker) Stop() {
	if w.running.Load() {
		close(w.stopCh)
	}
}

// IsRunning returns true if the worker is currently running.
func (w *CalendarImportWorker) IsRunning() bool {
	return w.running.Load()
}

func (w *CalendarImportWorker) runImportCycle(ctx context.Context) {
	result, err := w.Import(ctx)
	if err != nil {
		w.logger.Error("calendar import failed", "error", err)
		return
	}
	w.logger.Info("calendar import completed",
		"imported", result.Imported,
		"moved", result.Moved,
		"removed", result.Removed,
		"skipped", result.Skipped,
	)
}

// Import runs one cycle: events are upserted as blocked slots and blocked
// slots whose event disappeared are removed.
func (w *CalendarImportWorker) Import(ctx context.Context) (*ImportResult, error) {
	now := w.clock.Now()
	end := now.AddDate(0, 0, w.config.LookAheadDays)

	events, err := w.importer.ListEvents(ctx, now, end)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if event.Managed {
			result.Skipped++
			continue
		}
		window, err := sharedDomain.NewTimeSlot(event.Start, event.End, w.config.TZ)
		if err != nil {
			w.logger.Warn("skipping calendar event with invalid range", "event_id", event.ID, "error", err)
			result.Skipped++
			continue
		}
		seen[event.ID] = struct{}{}

		existing, err := w.slots.FindByExternalEventID(ctx, event.ID)
		switch {
		case err == nil:
			if existing.Window().SameInterval(window) {
				continue
			}
			existing.Move(window, now)
			if err := w.slots.Save(ctx, existing); err != nil {
				return result, err
			}
			result.Moved++
		case sharedDomain.CodeOf(err) == sharedDomain.CodeNotFound:
			slot := availability.NewExternalBusySlot(w.ids.NewID(), window, event.ID, now)
			if err := w.slots.Save(ctx, slot); err != nil {
				return result, err
			}
			result.Imported++
		default:
			return result, err
		}
	}

	imported, err := w.slots.ListAll(ctx, availability.Filter{
		Source: availability.SourceExternalCalendar,
		From:   now,
		To:     end,
	})
	if err != nil {
		return result, err
	}
	for _, slot := range imported {
		if _, ok := seen[slot.ExternalEventID()]; ok {
			continue
		}
		if err := w.slots.Delete(ctx, slot.ID()); err != nil {
			return result, err
		}
		result.Removed++
	}
	return result, nil
}
