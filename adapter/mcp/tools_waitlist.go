package mcp

import (
	"context"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/therapia/internal/waitlist/application/queries"
)

type waitlistListInput struct {
	Service string `json:"service" jsonschema:"required"`
}

func registerWaitlistTools(srv *mcp.Server, deps ToolDependencies) {
	srv.Tool("waitlist.list").
		Description("List waitlist requests of a service, oldest first, with decrypted contact info").
		Handler(func(ctx context.Context, input waitlistListInput) ([]queries.RequestDTO, error) {
			return listWaitlist(ctx, deps, input)
		})
}

func listWaitlist(ctx context.Context, deps ToolDependencies, input waitlistListInput) ([]queries.RequestDTO, error) {
	c := deps.Container
	service, err := c.GetServiceHandler.Handle(ctx, input.Service)
	if err != nil {
		return nil, err
	}
	return c.ListWaitlistHandler.Handle(ctx, queries.ListRequestsQuery{
		Actor:     deps.actor(),
		ServiceID: service.ID,
	})
}
