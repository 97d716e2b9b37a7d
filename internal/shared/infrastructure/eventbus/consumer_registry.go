package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
)

// ConsumerRegistry routes envelopes to the consumers subscribed to their
// routing key, in registration order. It is built once at start-up and
// shared by the in-process bus and the RabbitMQ consumer.
type ConsumerRegistry struct {
	mu     sync.RWMutex
	routes map[string][]EventConsumer
	logger *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{routes: make(map[string][]EventConsumer), logger: logger}
}

// Register subscribes consumer to each of its routing keys. Registering the
// same consumer twice for a key has no effect.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if containsConsumer(r.routes[key], consumer) {
			continue
		}
		r.routes[key] = append(r.routes[key], consumer)
		r.logger.Debug("consumer subscribed", "routing_key", key, "consumer", fmt.Sprintf("%T", consumer))
	}
}

func containsConsumer(list []EventConsumer, c EventConsumer) bool {
	for _, existing := range list {
		if sameConsumer(existing, c) {
			return true
		}
	}
	return false
}

// sameConsumer compares by identity; consumers with uncomparable dynamic
// types are never considered equal.
func sameConsumer(a, b EventConsumer) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// GetConsumers returns the consumers of a routing key.
func (r *ConsumerRegistry) GetConsumers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventConsumer(nil), r.routes[routingKey]...)
}

// RoutingKeys returns every subscribed routing key, sorted.
func (r *ConsumerRegistry) RoutingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.routes))
	for key := range r.routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Dispatch hands event to every consumer of its routing key. All consumers
// run even when one fails or panics; the joined error asks the transport to
// redeliver, and the idempotent wrappers skip the consumers that already
// succeeded.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.GetConsumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.Debug("no consumers", "routing_key", event.RoutingKey)
		return nil
	}
	var errs []error
	for _, consumer := range consumers {
		if err := r.safeHandle(ctx, consumer, event); err != nil {
			r.logger.Error("consumer failed",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"correlation_id", event.Metadata.CorrelationID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ConsumerRegistry) safeHandle(ctx context.Context, consumer EventConsumer, event *ConsumedEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("consumer panicked", "routing_key", event.RoutingKey, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("consumer %T panicked: %v", consumer, p)
		}
	}()
	return consumer.Handle(ctx, event)
}
