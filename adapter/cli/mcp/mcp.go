package mcp

import "github.com/spf13/cobra"

// Cmd is the MCP command group.
var Cmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve catalog, availability and waitlist tools to staff assistants",
}

func init() {
	Cmd.AddCommand(serveCmd)
}
