package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/app"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
)

// ToolDependencies provides the use cases and the acting identity for MCP
// tools. Actor defaults to the practice owner.
type ToolDependencies struct {
	Container *app.Container
	Actor     identity.Actor
}

func (d ToolDependencies) actor() identity.Actor {
	if d.Actor.IsAnonymous() {
		return cli.Operator()
	}
	return d.Actor
}

// RegisterTools registers the staff tools: catalog, availability, waitlist
// and appointment lookup.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.Container == nil {
		return errors.New("container is required")
	}

	srv.Tool("therapia.health").
		Description("Check the database, cache, broker and calendar dependencies").
		Handler(func(ctx context.Context, input struct{}) (map[string]any, error) {
			health := deps.Container.Health.Check(ctx)
			return map[string]any{
				"status": health.Status,
				"ready":  health.Ready(),
				"checks": health.Checks,
			}, nil
		})

	srv.Tool("therapia.version").
		Description("Get version information").
		Handler(func(ctx context.Context, input struct{}) (map[string]string, error) {
			return map[string]string{
				"version":   cli.Version,
				"commit":    cli.Commit,
				"buildDate": cli.BuildDate,
			}, nil
		})

	registerCatalogTools(srv, deps)
	registerAvailabilityTools(srv, deps)
	registerWaitlistTools(srv, deps)
	registerAppointmentTools(srv, deps)
	return nil
}
