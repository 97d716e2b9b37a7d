package mcp

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/therapia/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		container, err := cli.ContainerFor(ctx)
		if err != nil {
			return err
		}
		err = mcpinternal.Serve(ctx, container, cli.Logger())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
