package mcp

import (
	"context"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/therapia/internal/booking/application/queries"
)

type appointmentGetInput struct {
	ID string `json:"id" jsonschema:"required"`
}

func registerAppointmentTools(srv *mcp.Server, deps ToolDependencies) {
	srv.Tool("appointment.get").
		Description("Get an appointment with its payment state").
		Handler(func(ctx context.Context, input appointmentGetInput) (*queries.AppointmentDTO, error) {
			id, err := parseUUID(input.ID)
			if err != nil {
				return nil, err
			}
			return deps.Container.GetAppointmentHandler.Handle(ctx, queries.GetAppointmentQuery{
				Actor:         deps.actor(),
				AppointmentID: id,
			})
		})
}
