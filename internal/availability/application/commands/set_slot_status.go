package commands

import (
	"context"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// SetSlotStatusCommand blocks, reopens or removes an availability slot.
type SetSlotStatusCommand struct {
	Actor  identity.Actor
	SlotID uuid.UUID
	Status string
}

// SetSlotStatusHandler handles SetSlotStatusCommand.
type SetSlotStatusHandler struct {
	slots domain.Repository
	clock sharedDomain.Clock
}

// NewSetSlotStatusHandler creates a new SetSlotStatusHandler.
func NewSetSlotStatusHandler(slots domain.Repository, clock sharedDomain.Clock) *SetSlotStatusHandler {
	return &SetSlotStatusHandler{slots: slots, clock: clock}
}

// Handle executes the command.
func (h *SetSlotStatusHandler) Handle(ctx context.Context, cmd SetSlotStatusCommand) error {
	if !cmd.Actor.IsAdmin() {
		return sharedDomain.ErrForbidden
	}
	status, err := domain.ParseStatus(cmd.Status)
	if err != nil {
		return err
	}

	slot, err := h.slots.FindByID(ctx, cmd.SlotID)
	if err != nil {
		return err
	}
	slot.SetStatus(status, h.clock.Now())
	return h.slots.Save(ctx, slot)
}

// DeleteSlotCommand removes an availability slot.
type DeleteSlotCommand struct {
	Actor  identity.Actor
	SlotID uuid.UUID
}

// DeleteSlotHandler handles DeleteSlotCommand.
type DeleteSlotHandler struct {
	slots domain.Repository
}

// NewDeleteSlotHandler creates a new DeleteSlotHandler.
func NewDeleteSlotHandler(slots domain.Repository) *DeleteSlotHandler {
	return &DeleteSlotHandler{slots: slots}
}

// Handle executes the command.
func (h *DeleteSlotHandler) Handle(ctx context.Context, cmd DeleteSlotCommand) error {
	if !cmd.Actor.IsAdmin() {
		return sharedDomain.ErrForbidden
	}
	return h.slots.Delete(ctx, cmd.SlotID)
}
