package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	availabilityCommands "github.com/felixgeelhaar/therapia/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/therapia/internal/availability/application/queries"
	bookingQueries "github.com/felixgeelhaar/therapia/internal/booking/application/queries"
)

type openingsInput struct {
	Service string `json:"service" jsonschema:"required"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Days    int    `json:"days,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

type availabilityListInput struct {
	ServiceID string `json:"service_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Source    string `json:"source,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Days      int    `json:"days,omitempty"`
	TZ        string `json:"tz,omitempty"`
}

type slotStatusInput struct {
	ID     string `json:"id" jsonschema:"required"`
	Status string `json:"status" jsonschema:"required"`
}

type openingsOutput struct {
	ServiceID string                            `json:"service_id"`
	Slots     []bookingQueries.AvailableSlotDTO `json:"slots"`
}

func registerAvailabilityTools(srv *mcp.Server, deps ToolDependencies) {
	srv.Tool("slots.available").
		Description("Bookable start times of a service, net of the calendar and existing appointments").
		Handler(func(ctx context.Context, input openingsInput) (*openingsOutput, error) {
			return availableSlots(ctx, deps, input)
		})

	srv.Tool("availability.list").
		Description("List availability windows with their status and source").
		Handler(func(ctx context.Context, input availabilityListInput) ([]availabilityQueries.SlotDTO, error) {
			return listAvailability(ctx, deps, input)
		})

	srv.Tool("availability.set_status").
		Description("Block an availability window or make it available again").
		Handler(func(ctx context.Context, input slotStatusInput) (map[string]string, error) {
			id, err := parseUUID(input.ID)
			if err != nil {
				return nil, err
			}
			if err := deps.Container.SetSlotStatusHandler.Handle(ctx, availabilityCommands.SetSlotStatusCommand{
				Actor:  deps.actor(),
				SlotID: id,
				Status: input.Status,
			}); err != nil {
				return nil, err
			}
			return map[string]string{"id": id.String(), "status": input.Status}, nil
		})
}

func availableSlots(ctx context.Context, deps ToolDependencies, input openingsInput) (*openingsOutput, error) {
	c := deps.Container
	if input.Service == "" {
		return nil, errors.New("service is required")
	}
	service, err := c.GetServiceHandler.Handle(ctx, input.Service)
	if err != nil {
		return nil, err
	}
	tz := input.TZ
	if tz == "" {
		tz = c.Config.CalendarTZ
	}
	from, to, err := dayRange(input.From, input.To, tz, c.Clock.Now(), input.Days)
	if err != nil {
		return nil, err
	}
	slots, err := c.AvailableSlotsHandler.Handle(ctx, bookingQueries.GetAvailableSlotsQuery{
		ServiceID: service.ID,
		From:      from,
		To:        to,
		TZ:        tz,
	})
	if err != nil {
		return nil, err
	}
	return &openingsOutput{ServiceID: service.ID.String(), Slots: slots}, nil
}

func listAvailability(ctx context.Context, deps ToolDependencies, input availabilityListInput) ([]availabilityQueries.SlotDTO, error) {
	c := deps.Container
	tz := input.TZ
	if tz == "" {
		tz = c.Config.CalendarTZ
	}
	serviceID, err := parseOptionalUUID(input.ServiceID)
	if err != nil {
		return nil, err
	}
	from, to, err := dayRange(input.From, input.To, tz, c.Clock.Now(), input.Days)
	if err != nil {
		return nil, err
	}
	return c.ListSlotsHandler.Handle(ctx, availabilityQueries.ListSlotsQuery{
		Actor:     deps.actor(),
		ServiceID: serviceID,
		Status:    input.Status,
		Source:    input.Source,
		From:      from,
		To:        to,
	})
}
