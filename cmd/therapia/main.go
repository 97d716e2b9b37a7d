package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	cliAvailability "github.com/felixgeelhaar/therapia/adapter/cli/availability"
	"github.com/felixgeelhaar/therapia/adapter/cli/mcp"
	"github.com/felixgeelhaar/therapia/adapter/cli/service"
	"github.com/felixgeelhaar/therapia/adapter/cli/waitlist"
	"github.com/felixgeelhaar/therapia/pkg/config"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

func main() {
	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.Version))
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	cliApp := cli.NewApp(cfg)
	defer cliApp.Close()
	cli.SetApp(cliApp)

	// Register commands
	cli.AddCommand(service.Cmd)
	cli.AddCommand(cliAvailability.Cmd)
	cli.AddCommand(waitlist.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}
