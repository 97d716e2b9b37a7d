// Package domain defines outgoing notifications.
package domain

import (
	"context"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// ErrDeliveryFailed wraps provider failures. It is retryable.
var ErrDeliveryFailed = sharedDomain.NewUpstreamError("NOTIFICATION_DELIVERY_FAILED", "notification could not be delivered")

// Message is a plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Notifier delivers messages. Implementations can be swapped without
// changing subscribers.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
