package application

import (
	"context"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// EventRecorder stores domain events for publication once the surrounding
// unit of work commits.
type EventRecorder interface {
	Record(ctx context.Context, events []domain.DomainEvent) error
}

// RecordAggregateEvents stamps the aggregate's pending events with metadata,
// records them and clears the buffer.
func RecordAggregateEvents(ctx context.Context, recorder EventRecorder, agg domain.AggregateRoot, md domain.EventMetadata) error {
	events := agg.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	ApplyEventMetadata(events, md)
	if err := recorder.Record(ctx, events); err != nil {
		return err
	}
	agg.ClearDomainEvents()
	return nil
}
