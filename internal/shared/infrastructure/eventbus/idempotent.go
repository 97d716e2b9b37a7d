package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ProcessedStore remembers which events a named consumer has handled.
type ProcessedStore interface {
	IsProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, at time.Time) error
}

// IdempotentConsumer skips events the wrapped consumer already handled.
// The mark is written after a successful Handle, so a crash in between leads
// to one more delivery, which the inner consumer must tolerate.
type IdempotentConsumer struct {
	name   string
	inner  EventConsumer
	store  ProcessedStore
	now    func() time.Time
	logger *slog.Logger
}

// NewIdempotentConsumer wraps inner under a stable consumer name.
func NewIdempotentConsumer(name string, inner EventConsumer, store ProcessedStore, logger *slog.Logger) *IdempotentConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotentConsumer{
		name:   name,
		inner:  inner,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// EventTypes implements EventConsumer.
func (c *IdempotentConsumer) EventTypes() []string { return c.inner.EventTypes() }

// Handle implements EventConsumer.
func (c *IdempotentConsumer) Handle(ctx context.Context, event *ConsumedEvent) error {
	done, err := c.store.IsProcessed(ctx, c.name, event.EventID)
	if err != nil {
		return fmt.Errorf("check processed %s: %w", c.name, err)
	}
	if done {
		c.logger.Debug("skipping duplicate event",
			"consumer", c.name,
			"event_id", event.EventID,
			"routing_key", event.RoutingKey,
		)
		return nil
	}

	if err := c.inner.Handle(ctx, event); err != nil {
		return err
	}

	if err := c.store.MarkProcessed(ctx, c.name, event.EventID, c.now()); err != nil {
		return fmt.Errorf("mark processed %s: %w", c.name, err)
	}
	return nil
}
