package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// EventConsumer handles specific event types.
type EventConsumer interface {
	// EventTypes returns the routing keys this consumer handles,
	// e.g. ["payments.payment.succeeded"].
	EventTypes() []string

	// Handle processes the event. Delivery is at-least-once.
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is the envelope carried on the bus.
type ConsumedEvent struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// NewConsumedEvent builds the envelope for a domain event.
func NewConsumedEvent(event domain.DomainEvent) (*ConsumedEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.RoutingKey(), err)
	}
	return &ConsumedEvent{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
		Metadata:      event.Metadata(),
	}, nil
}

// Decode unmarshals the event-specific payload into v.
func (e *ConsumedEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.RoutingKey, err)
	}
	return nil
}

// Consumer defines the interface for consuming events from a message broker.
type Consumer interface {
	// Start begins consuming messages. This is a blocking call.
	Start(ctx context.Context) error

	// RegisterConsumer registers an event consumer.
	RegisterConsumer(consumer EventConsumer)

	// Close closes the consumer connection.
	Close() error
}

// ConsumerFunc adapts a function to EventConsumer.
type ConsumerFunc struct {
	Types   []string
	Handler func(ctx context.Context, event *ConsumedEvent) error
}

// EventTypes implements EventConsumer.
func (f ConsumerFunc) EventTypes() []string { return f.Types }

// Handle implements EventConsumer.
func (f ConsumerFunc) Handle(ctx context.Context, event *ConsumedEvent) error {
	return f.Handler(ctx, event)
}
