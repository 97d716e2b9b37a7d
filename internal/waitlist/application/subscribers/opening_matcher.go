// Package subscribers turns freed appointment slots into waitlist
// opportunities.
package subscribers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/therapia/internal/waitlist/domain"
)

// RoutingKeyAppointmentCanceled frees a slot.
const RoutingKeyAppointmentCanceled = "booking.appointment.canceled"

type canceledPayload struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	Slot          struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
		TZ    string    `json:"tz"`
	} `json:"slot"`
}

// OpeningMatcher emits a waitlist.opportunity for every request interested
// in a canceled appointment's slot. Redeliveries are filtered by the
// idempotent consumer wrapper, keyed by event ID.
type OpeningMatcher struct {
	requests domain.Repository
	recorder sharedApplication.EventRecorder
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	logger   *slog.Logger
}

// NewOpeningMatcher creates the subscriber.
func NewOpeningMatcher(
	requests domain.Repository,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *OpeningMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpeningMatcher{requests: requests, recorder: recorder, uow: uow, clock: clock, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (m *OpeningMatcher) EventTypes() []string {
	return []string{RoutingKeyAppointmentCanceled}
}

// Handle implements eventbus.EventConsumer.
func (m *OpeningMatcher) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload canceledPayload
	if err := event.Decode(&payload); err != nil {
		m.logger.Error("undecodable cancellation event", "event_id", event.EventID, "error", err)
		return nil
	}
	serviceID, err := uuid.Parse(payload.ServiceID)
	if err != nil {
		m.logger.Error("cancellation event has an invalid service id", "event_id", event.EventID, "service_id", payload.ServiceID)
		return nil
	}
	slot, err := sharedDomain.NewTimeSlot(payload.Slot.Start, payload.Slot.End, payload.Slot.TZ)
	if err != nil {
		m.logger.Error("cancellation event has an invalid slot", "event_id", event.EventID, "error", err)
		return nil
	}
	now := m.clock.Now()
	if slot.IsInPast(now) {
		return nil
	}

	md := sharedApplication.CausedBy(event.EventID, event.Metadata)
	return sharedApplication.WithUnitOfWork(ctx, m.uow, func(txCtx context.Context) error {
		requests, err := m.requests.ListByService(txCtx, serviceID)
		if err != nil {
			return err
		}
		matched := 0
		for _, r := range requests {
			if !r.Matches(serviceID, slot) {
				continue
			}
			r.OfferOpening(slot, event.EventID, now)
			if err := sharedApplication.RecordAggregateEvents(txCtx, m.recorder, r, md); err != nil {
				return err
			}
			matched++
		}
		if matched > 0 {
			m.logger.Info("waitlist opening offered",
				"service_id", serviceID,
				"appointment_id", payload.AppointmentID,
				"requests", matched,
			)
		}
		return nil
	})
}
