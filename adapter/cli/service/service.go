package service

import (
	"github.com/spf13/cobra"
)

// Cmd is the service command group
var Cmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the service catalog",
	Long:  `List, create, update, activate and deactivate bookable services.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(activateCmd)
	Cmd.AddCommand(deactivateCmd)
}
