package subscribers

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
)

// AppointmentRescheduledSubscriber moves the calendar event of a
// rescheduled appointment.
type AppointmentRescheduledSubscriber struct {
	sync   *CalendarSync
	logger *slog.Logger
}

// NewAppointmentRescheduledSubscriber creates the subscriber.
func NewAppointmentRescheduledSubscriber(sync *CalendarSync, logger *slog.Logger) *AppointmentRescheduledSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppointmentRescheduledSubscriber{sync: sync, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (s *AppointmentRescheduledSubscriber) EventTypes() []string {
	return []string{domain.RoutingKeyAppointmentRescheduled}
}

// Handle implements eventbus.EventConsumer.
func (s *AppointmentRescheduledSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	md := sharedApplication.CausedBy(event.EventID, event.Metadata)
	return settle(s.logger, event, s.sync.Move(ctx, event.AggregateID, md))
}
