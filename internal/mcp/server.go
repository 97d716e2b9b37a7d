package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	mcplocal "github.com/felixgeelhaar/therapia/adapter/mcp"
	"github.com/felixgeelhaar/therapia/internal/app"
)

// NewServer builds the MCP server with the staff tools, resources and prompts.
func NewServer(c *app.Container, logger *slog.Logger) (*mcpgo.Server, error) {
	if c == nil {
		return nil, errors.New("container is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	version := c.Config.Version
	if version == "" {
		version = "dev"
	}
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    "therapia-mcp",
		Version: version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcplocal.ToolDependencies{Container: c}

	if err := mcplocal.RegisterTools(srv, deps); err != nil {
		return nil, err
	}

	// Register MCP resources
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("failed to register MCP resources", "error", err)
		// Continue - resources are optional enhancements
	}

	// Register MCP prompts
	if err := mcplocal.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("failed to register MCP prompts", "error", err)
		// Continue - prompts are optional enhancements
	}
	return srv, nil
}

// Serve starts the MCP server on MCP_ADDR and blocks until the context is
// canceled. Requests need MCP_AUTH_TOKEN as a bearer token when it is set.
func Serve(ctx context.Context, c *app.Container, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(c, logger)
	if err != nil {
		return err
	}
	cfg := c.Config

	adapter := mcpLogger{logger: logger}
	stack := middleware.DefaultStack(adapter)

	if cfg.MCPAuthToken != "" {
		authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
			cfg.MCPAuthToken: {ID: "mcp", Name: "mcp"},
		}))
		stack = append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(adapter))}, stack...)
	} else {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

func (l mcpLogger) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		args = append(args, field.Key, field.Value)
	}
	return args
}
