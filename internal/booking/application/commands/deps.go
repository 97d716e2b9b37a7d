package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	availability "github.com/felixgeelhaar/therapia/internal/availability/domain"
	"github.com/felixgeelhaar/therapia/internal/booking/application/services"
	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var tracer = otel.Tracer("therapia.internal.booking.commands")

// Deps groups the collaborators shared by the booking use cases.
type Deps struct {
	Services     catalog.ServiceRepository
	Slots        availability.Repository
	Appointments domain.Repository
	Payments     payments.Repository
	Availability *services.AvailabilityService
	Gateway      payments.Gateway
	Calendar     calendar.Adapter
	Recorder     sharedApplication.EventRecorder
	UoW          sharedApplication.UnitOfWork
	Clock        sharedDomain.Clock
	IDs          sharedDomain.IDGenerator
	Logger       *slog.Logger
	// Timeout bounds each use case. Zero keeps the caller's deadline.
	Timeout time.Duration
	// ReturnURL is where the payment page sends the client afterwards.
	ReturnURL string
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// SlotRequest selects a time either by availability slot ID or explicitly.
// With a slot ID, Start picks a session inside the window. End defaults to
// one session after Start.
type SlotRequest struct {
	SlotID *uuid.UUID
	Start  time.Time
	End    time.Time
	TZ     string
}

// resolveSlot turns a request into a bookable slot of svc. A slot ID must
// name an available window serving the service; explicit times must lie
// inside one. The session length is checked by the appointment itself.
func resolveSlot(ctx context.Context, slots availability.Repository, svc *catalog.Service, req SlotRequest) (sharedDomain.TimeSlot, error) {
	if req.SlotID != nil {
		s, err := slots.FindByID(ctx, *req.SlotID)
		if err != nil {
			return sharedDomain.TimeSlot{}, err
		}
		if !s.ServesService(svc.ID()) {
			return sharedDomain.TimeSlot{}, availability.ErrSlotWrongService
		}
		if !s.IsAvailable() {
			return sharedDomain.TimeSlot{}, availability.ErrSlotUnavailable
		}
		window := s.Window()
		if req.Start.IsZero() {
			if req.TZ != "" {
				return window.In(req.TZ)
			}
			return window, nil
		}
		tz := req.TZ
		if tz == "" {
			tz = window.TZ()
		}
		slot, err := sessionAt(req.Start, req.End, tz, svc)
		if err != nil {
			return sharedDomain.TimeSlot{}, err
		}
		if !window.Contains(slot) {
			return sharedDomain.TimeSlot{}, availability.ErrSlotUnavailable
		}
		return slot, nil
	}

	if req.Start.IsZero() {
		return sharedDomain.TimeSlot{}, domain.ErrSlotRequired
	}
	slot, err := sessionAt(req.Start, req.End, req.TZ, svc)
	if err != nil {
		return sharedDomain.TimeSlot{}, err
	}
	windows, err := slots.ListAvailable(ctx, svc.ID(), slot.Start(), slot.End())
	if err != nil {
		return sharedDomain.TimeSlot{}, err
	}
	for _, w := range windows {
		if w.Window().Contains(slot) {
			return slot, nil
		}
	}
	return sharedDomain.TimeSlot{}, availability.ErrSlotUnavailable
}

func sessionAt(start, end time.Time, tz string, svc *catalog.Service) (sharedDomain.TimeSlot, error) {
	if end.IsZero() {
		end = start.Add(svc.Duration())
	}
	return sharedDomain.NewTimeSlot(start, end, tz)
}

// authorize lets admins and the owning client act on an appointment.
func authorize(actor identity.Actor, a *domain.Appointment) error {
	if actor.IsAdmin() {
		return nil
	}
	if id := a.ClientID(); id != nil && actor.CanActFor(*id) {
		return nil
	}
	return sharedDomain.ErrForbidden
}

// initiatorOf maps the caller to the refund policy's initiator.
func initiatorOf(actor identity.Actor) domain.Initiator {
	if actor.IsAdmin() {
		return domain.InitiatorProvider
	}
	return domain.InitiatorClient
}

func gatewayError(err error) error {
	var de *sharedDomain.Error
	if errors.As(err, &de) {
		return err
	}
	return payments.ErrGatewayUnavailable.Wrap(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(sharedDomain.CodeOf(err)))
	}
	span.End()
}
