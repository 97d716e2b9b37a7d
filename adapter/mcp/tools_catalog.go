package mcp

import (
	"context"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
)

type serviceListInput struct {
	IncludeInactive bool `json:"include_inactive,omitempty"`
}

type serviceGetInput struct {
	Ref string `json:"ref" jsonschema:"required"`
}

func registerCatalogTools(srv *mcp.Server, deps ToolDependencies) {
	c := deps.Container

	srv.Tool("service.list").
		Description("List the services of the practice with prices and cancellation policy").
		Handler(func(ctx context.Context, input serviceListInput) ([]queries.ServiceDTO, error) {
			return c.ListServicesHandler.Handle(ctx, queries.ListServicesQuery{
				IncludeInactive: input.IncludeInactive,
			})
		})

	srv.Tool("service.get").
		Description("Get one service by ID or slug").
		Handler(func(ctx context.Context, input serviceGetInput) (*queries.ServiceDTO, error) {
			return c.GetServiceHandler.Handle(ctx, input.Ref)
		})
}
