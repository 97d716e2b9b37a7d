package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
)

// RegisterResources registers read-only views for assistants.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	if deps.Container == nil {
		return fmt.Errorf("container is required")
	}

	srv.Resource("therapia://services").
		Name("Services").
		Description("Active services with prices, formats and cancellation windows").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			services, err := deps.Container.ListServicesHandler.Handle(ctx, queries.ListServicesQuery{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, services)
		})

	srv.Resource("therapia://availability/week").
		Name("Availability this week").
		Description("Availability windows of the next seven days, including blocked and reserved ones").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			slots, err := listAvailability(ctx, deps, availabilityListInput{Days: 7})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, slots)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
