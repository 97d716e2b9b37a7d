// Package commands holds the waitlist write side.
package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/waitlist/domain"
)

// SubmitRequestCommand asks to be told when a time opens up for a service.
// PreferredStart and PreferredEnd are optional but must be given together.
type SubmitRequestCommand struct {
	Actor          identity.Actor
	ServiceID      uuid.UUID
	ClientID       *uuid.UUID
	ContactInfo    string
	PreferredStart *time.Time
	PreferredEnd   *time.Time
	TZ             string
}

func (cmd SubmitRequestCommand) window() (*sharedDomain.TimeSlot, error) {
	if cmd.PreferredStart == nil && cmd.PreferredEnd == nil {
		return nil, nil
	}
	if cmd.PreferredStart == nil || cmd.PreferredEnd == nil {
		return nil, sharedDomain.NewValidationError("INVALID_WINDOW", "preferred window needs both start and end")
	}
	tz := cmd.TZ
	if tz == "" {
		tz = "UTC"
	}
	w, err := sharedDomain.NewTimeSlot(*cmd.PreferredStart, *cmd.PreferredEnd, tz)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// clientID resolves who the request belongs to. Clients submit for
// themselves; admins may submit for anyone.
func (cmd SubmitRequestCommand) clientID() (*uuid.UUID, error) {
	if cmd.ClientID == nil {
		if cmd.Actor.IsAnonymous() || cmd.Actor.IsAdmin() {
			return nil, nil
		}
		id := cmd.Actor.UserID
		return &id, nil
	}
	if !cmd.Actor.CanActFor(*cmd.ClientID) {
		return nil, sharedDomain.ErrForbidden
	}
	return cmd.ClientID, nil
}

// SubmitRequestHandler handles SubmitRequestCommand.
type SubmitRequestHandler struct {
	requests domain.Repository
	services catalog.ServiceRepository
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	ids      sharedDomain.IDGenerator
}

// NewSubmitRequestHandler creates a new SubmitRequestHandler.
func NewSubmitRequestHandler(
	requests domain.Repository,
	services catalog.ServiceRepository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	ids sharedDomain.IDGenerator,
) *SubmitRequestHandler {
	return &SubmitRequestHandler{requests: requests, services: services, uow: uow, clock: clock, ids: ids}
}

// Handle stores the request and returns its ID.
func (h *SubmitRequestHandler) Handle(ctx context.Context, cmd SubmitRequestCommand) (uuid.UUID, error) {
	clientID, err := cmd.clientID()
	if err != nil {
		return uuid.Nil, err
	}
	window, err := cmd.window()
	if err != nil {
		return uuid.Nil, err
	}
	req, err := domain.NewRequest(h.ids.NewID(), cmd.ServiceID, clientID, cmd.ContactInfo, window, h.clock.Now())
	if err != nil {
		return uuid.Nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if _, err := h.services.FindByID(txCtx, cmd.ServiceID); err != nil {
			return err
		}
		return h.requests.Save(txCtx, req)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return req.ID(), nil
}
