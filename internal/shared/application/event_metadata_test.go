package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventMetadata(t *testing.T) {
	t.Run("starts a correlation when none is given", func(t *testing.T) {
		userID := uuid.New()

		metadata := NewEventMetadata(userID, uuid.Nil)

		assert.Equal(t, userID, metadata.UserID)
		assert.NotEqual(t, uuid.Nil, metadata.CorrelationID)
		assert.Equal(t, metadata.CorrelationID, metadata.CausationID)
	})

	t.Run("keeps the supplied correlation", func(t *testing.T) {
		correlationID := uuid.New()

		metadata := NewEventMetadata(uuid.Nil, correlationID)

		assert.Equal(t, correlationID, metadata.CorrelationID)
	})
}

func TestCausedBy(t *testing.T) {
	parent := NewEventMetadata(uuid.New(), uuid.Nil)
	eventID := uuid.New()

	md := CausedBy(eventID, parent)

	assert.Equal(t, parent.CorrelationID, md.CorrelationID)
	assert.Equal(t, eventID, md.CausationID)
	assert.Equal(t, parent.UserID, md.UserID)

	orphan := CausedBy(eventID, domain.EventMetadata{})
	assert.Equal(t, eventID, orphan.CorrelationID)
}

type testEvent struct {
	domain.BaseEvent
}

type testAggregate struct {
	domain.BaseAggregateRoot
}

type recorderFunc func(ctx context.Context, events []domain.DomainEvent) error

func (f recorderFunc) Record(ctx context.Context, events []domain.DomainEvent) error {
	return f(ctx, events)
}

func TestRecordAggregateEvents(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	agg := &testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(uuid.New(), now)}
	agg.AddDomainEvent(&testEvent{BaseEvent: domain.NewBaseEvent(agg.ID(), "Test", "test.created", now)})
	md := NewEventMetadata(uuid.New(), uuid.Nil)

	var recorded []domain.DomainEvent
	err := RecordAggregateEvents(context.Background(), recorderFunc(func(_ context.Context, events []domain.DomainEvent) error {
		recorded = events
		return nil
	}), agg, md)

	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, md, recorded[0].Metadata())
	assert.Empty(t, agg.DomainEvents())
}

func TestRecordAggregateEvents_KeepsEventsOnFailure(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	agg := &testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(uuid.New(), now)}
	agg.AddDomainEvent(&testEvent{BaseEvent: domain.NewBaseEvent(agg.ID(), "Test", "test.created", now)})

	err := RecordAggregateEvents(context.Background(), recorderFunc(func(context.Context, []domain.DomainEvent) error {
		return errors.New("outbox down")
	}), agg, domain.EventMetadata{})

	assert.Error(t, err)
	assert.Len(t, agg.DomainEvents(), 1)
}
