package commands

import (
	"context"

	"github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// ServiceInput is the admin-facing description of a service.
type ServiceInput struct {
	Slug               string
	Name               string
	Price              string
	Currency           string
	Deposit            string
	DurationMinutes    int
	Formats            []string
	CancelFreeHours    int
	CancelPartialHours int
	RescheduleMinHours int
}

func (in ServiceInput) params() (domain.ServiceParams, error) {
	price, err := sharedDomain.ParseMoney(in.Price, in.Currency)
	if err != nil {
		return domain.ServiceParams{}, err
	}
	params := domain.ServiceParams{
		Slug:            in.Slug,
		Name:            in.Name,
		Price:           price,
		DurationMinutes: in.DurationMinutes,
		Policy: domain.Policy{
			CancelFreeHours:    in.CancelFreeHours,
			CancelPartialHours: in.CancelPartialHours,
			RescheduleMinHours: in.RescheduleMinHours,
		},
	}
	if in.Deposit != "" {
		deposit, err := sharedDomain.ParseMoney(in.Deposit, in.Currency)
		if err != nil {
			return domain.ServiceParams{}, err
		}
		params.Deposit = &deposit
	}
	for _, f := range in.Formats {
		format, err := domain.ParseFormat(f)
		if err != nil {
			return domain.ServiceParams{}, err
		}
		params.Formats = append(params.Formats, format)
	}
	return params, nil
}

// CreateServiceCommand adds a service to the catalog.
type CreateServiceCommand struct {
	Actor identity.Actor
	ServiceInput
}

// CreateServiceHandler handles CreateServiceCommand.
type CreateServiceHandler struct {
	repo     domain.ServiceRepository
	recorder sharedApplication.EventRecorder
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	ids      sharedDomain.IDGenerator
}

// NewCreateServiceHandler creates a new CreateServiceHandler.
func NewCreateServiceHandler(
	repo domain.ServiceRepository,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	ids sharedDomain.IDGenerator,
) *CreateServiceHandler {
	return &CreateServiceHandler{repo: repo, recorder: recorder, uow: uow, clock: clock, ids: ids}
}

// Handle executes the command and returns the new service ID.
func (h *CreateServiceHandler) Handle(ctx context.Context, cmd CreateServiceCommand) (uuid.UUID, error) {
	if !cmd.Actor.IsAdmin() {
		return uuid.Nil, sharedDomain.ErrForbidden
	}
	params, err := cmd.params()
	if err != nil {
		return uuid.Nil, err
	}

	now := h.clock.Now()
	svc, err := domain.NewService(h.ids.NewID(), params, now)
	if err != nil {
		return uuid.Nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.repo.Save(txCtx, svc); err != nil {
			return err
		}
		md := sharedApplication.NewEventMetadata(cmd.Actor.UserID, uuid.Nil)
		return sharedApplication.RecordAggregateEvents(txCtx, h.recorder, svc, md)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return svc.ID(), nil
}
