package commands

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// BookAppointmentCommand reserves a slot of a service and starts payment.
type BookAppointmentCommand struct {
	Actor       identity.Actor
	ServiceID   uuid.UUID
	Slot        SlotRequest
	Format      string
	ClientID    *uuid.UUID
	AnonymousID string
	IntakeForm  string
	Metadata    map[string]string
}

// BookAppointmentResult is returned to the client, which pays at PaymentURL.
type BookAppointmentResult struct {
	AppointmentID uuid.UUID
	PaymentID     uuid.UUID
	PaymentURL    string
	Status        domain.Status
	Amount        sharedDomain.Money
	Slot          sharedDomain.TimeSlot
}

// BookAppointmentHandler handles BookAppointmentCommand.
type BookAppointmentHandler struct {
	deps Deps
}

// NewBookAppointmentHandler creates a new BookAppointmentHandler.
func NewBookAppointmentHandler(deps Deps) *BookAppointmentHandler {
	return &BookAppointmentHandler{deps: deps}
}

// Handle reserves the slot and creates the payment intent in one
// transaction. If the payment provider fails nothing is persisted.
func (h *BookAppointmentHandler) Handle(ctx context.Context, cmd BookAppointmentCommand) (result *BookAppointmentResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.BookAppointment", trace.WithAttributes(
		attribute.String("service_id", cmd.ServiceID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = sharedApplication.WithDeadline(ctx, h.deps.Timeout, func(ctx context.Context) error {
		result, err = h.book(ctx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *BookAppointmentHandler) book(ctx context.Context, cmd BookAppointmentCommand) (*BookAppointmentResult, error) {
	owner, err := ownerFor(cmd.Actor, cmd.ClientID, cmd.AnonymousID)
	if err != nil {
		return nil, err
	}
	format, err := catalog.ParseFormat(cmd.Format)
	if err != nil {
		return nil, err
	}

	now := h.deps.Clock.Now()
	svc, err := h.deps.Services.FindByID(ctx, cmd.ServiceID)
	if err != nil {
		return nil, err
	}
	slot, err := resolveSlot(ctx, h.deps.Slots, svc, cmd.Slot)
	if err != nil {
		return nil, err
	}

	a, err := domain.NewAppointment(h.deps.IDs.NewID(), svc, domain.NewAppointmentParams{
		Owner:      owner,
		Slot:       slot,
		Format:     format,
		IntakeForm: cmd.IntakeForm,
		Metadata:   cmd.Metadata,
	}, now)
	if err != nil {
		return nil, err
	}

	amount := chargeFor(svc)
	payment := payments.NewPayment(h.deps.IDs.NewID(), a.ID(), amount, h.deps.Gateway.Name(), now)

	err = h.deps.Availability.WithServiceLock(ctx, svc.ID(), func(ctx context.Context) error {
		return sharedApplication.WithUnitOfWork(ctx, h.deps.UoW, func(txCtx context.Context) error {
			if err := h.deps.Availability.Reserve(txCtx, a); err != nil {
				return err
			}

			intent, err := h.deps.Gateway.CreateIntent(txCtx, payments.IntentRequest{
				AppointmentID:  a.ID(),
				Amount:         amount,
				Description:    svc.Name(),
				ReturnURL:      h.deps.ReturnURL,
				IdempotencyKey: "appointment:" + a.ID().String(),
			})
			if err != nil {
				return gatewayError(err)
			}
			if err := payment.AttachProvider(intent.ProviderPaymentID, intent.PaymentURL, now); err != nil {
				return err
			}
			if err := h.deps.Payments.Save(txCtx, payment); err != nil {
				return err
			}
			a.AttachPayment(payment)

			md := sharedApplication.NewEventMetadata(cmd.Actor.UserID, uuid.Nil)
			if err := sharedApplication.RecordAggregateEvents(txCtx, h.deps.Recorder, a, md); err != nil {
				return err
			}
			return sharedApplication.RecordAggregateEvents(txCtx, h.deps.Recorder, payment, md)
		})
	})
	if err != nil {
		h.deps.logger().Info("booking rejected",
			"service_id", svc.ID(),
			"start", slot.Start(),
			"error", err,
		)
		return nil, err
	}

	h.deps.logger().Info("appointment booked",
		"appointment_id", a.ID(),
		"service_id", svc.ID(),
		"start", slot.Start(),
		"payment_id", payment.ID(),
	)
	return &BookAppointmentResult{
		AppointmentID: a.ID(),
		PaymentID:     payment.ID(),
		PaymentURL:    payment.PaymentURL(),
		Status:        a.Status(),
		Amount:        amount,
		Slot:          a.Slot(),
	}, nil
}

// ownerFor decides who the appointment belongs to. Clients book for
// themselves, anonymous callers need an anonymous ID, admins book for anyone.
func ownerFor(actor identity.Actor, clientID *uuid.UUID, anonymousID string) (domain.Owner, error) {
	switch {
	case actor.IsAdmin():
		return domain.Owner{ClientID: clientID, AnonymousID: anonymousID}, nil
	case actor.IsAnonymous():
		if clientID != nil {
			return domain.Owner{}, sharedDomain.ErrForbidden
		}
		return domain.Owner{AnonymousID: anonymousID}, nil
	default:
		if clientID != nil && *clientID != actor.UserID {
			return domain.Owner{}, sharedDomain.ErrForbidden
		}
		if anonymousID != "" {
			return domain.Owner{}, domain.ErrOwnerRequired
		}
		id := actor.UserID
		return domain.Owner{ClientID: &id}, nil
	}
}

// chargeFor is the deposit when the service takes one, the price otherwise.
func chargeFor(svc *catalog.Service) sharedDomain.Money {
	if d := svc.Deposit(); d != nil {
		return *d
	}
	return svc.Price()
}
