package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	"github.com/felixgeelhaar/therapia/internal/notifications/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	waitlist "github.com/felixgeelhaar/therapia/internal/waitlist/domain"
)

type opportunityPayload struct {
	RequestID string    `json:"request_id"`
	ServiceID string    `json:"service_id"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	SlotTZ    string    `json:"slot_tz"`
}

// WaitlistOpportunitySubscriber emails waitlisted clients about an opening.
// The contact address is read from the encrypted store, never from the
// event.
type WaitlistOpportunitySubscriber struct {
	notifier domain.Notifier
	requests waitlist.Repository
	services catalog.ServiceRepository
	logger   *slog.Logger
}

// NewWaitlistOpportunitySubscriber creates the subscriber.
func NewWaitlistOpportunitySubscriber(
	notifier domain.Notifier,
	requests waitlist.Repository,
	services catalog.ServiceRepository,
	logger *slog.Logger,
) *WaitlistOpportunitySubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitlistOpportunitySubscriber{notifier: notifier, requests: requests, services: services, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (s *WaitlistOpportunitySubscriber) EventTypes() []string {
	return []string{waitlist.RoutingKeyOpportunity}
}

// Handle implements eventbus.EventConsumer.
func (s *WaitlistOpportunitySubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var p opportunityPayload
	if err := event.Decode(&p); err != nil {
		s.logger.Error("undecodable opportunity event", "event_id", event.EventID, "error", err)
		return nil
	}
	requestID, err := uuid.Parse(p.RequestID)
	if err != nil {
		s.logger.Error("opportunity event has an invalid request id", "event_id", event.EventID)
		return nil
	}
	slot, err := sharedDomain.NewTimeSlot(p.SlotStart, p.SlotEnd, p.SlotTZ)
	if err != nil {
		s.logger.Error("opportunity event has an invalid slot", "event_id", event.EventID, "error", err)
		return nil
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if errors.Is(err, waitlist.ErrRequestNotFound) {
		s.logger.Info("waitlist request withdrawn before notification", "request_id", requestID)
		return nil
	}
	if err != nil {
		return err
	}
	serviceName := "your session"
	if svc, err := s.services.FindByID(ctx, req.ServiceID()); err == nil {
		serviceName = svc.Name()
	} else if !errors.Is(err, catalog.ErrServiceNotFound) {
		return err
	}

	to, toName := req.Contact(), ""
	if email, err := identity.ParseEmail(to); err == nil {
		to, toName = email.Address(), email.Name()
	}
	start := slot.LocalStart()
	msg := domain.Message{
		To:      to,
		ToName:  toName,
		Subject: "A time opened up for " + serviceName,
		Body: fmt.Sprintf(
			"Good news: a time for %s is free again on %s at %s (%s).\nBook it before someone else does.\n",
			serviceName, start.Format("Monday, 2 January 2006"), start.Format("15:04"), slot.TZ(),
		),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("waitlist opportunity sent", "request_id", requestID, "event_id", event.EventID)
	return nil
}
