package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
)

var showInactive bool

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List services",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		services, err := c.ListServicesHandler.Handle(cmd.Context(), queries.ListServicesQuery{
			IncludeInactive: showInactive,
		})
		if err != nil {
			return fmt.Errorf("failed to list services: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(services) == 0 {
			fmt.Fprintln(out, "No services found.")
			return nil
		}
		fmt.Fprintf(out, "Services (%d):\n", len(services))
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, s := range services {
			printService(out, s)
			fmt.Fprintln(out)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id-or-slug>",
	Short: "Show a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		s, err := c.GetServiceHandler.Handle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printService(cmd.OutOrStdout(), *s)
		return nil
	},
}

func printService(out io.Writer, s queries.ServiceDTO) {
	marker := "[active]"
	if !s.Active {
		marker = "[inactive]"
	}
	fmt.Fprintf(out, "%s %s (%s)\n", marker, s.Name, s.Slug)
	fmt.Fprintf(out, "   ID: %s\n", s.ID)
	fmt.Fprintf(out, "   Price: %s %s", s.Price, s.Currency)
	if s.Deposit != "" {
		fmt.Fprintf(out, " (deposit %s)", s.Deposit)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "   Duration: %d min, formats: %s\n", s.DurationMinutes, strings.Join(s.Formats, ", "))
	fmt.Fprintf(out, "   Policy: free cancel %dh, partial %dh, reschedule %dh\n",
		s.CancelFreeHours, s.CancelPartialHours, s.RescheduleMinHours)
}

func init() {
	listCmd.Flags().BoolVarP(&showInactive, "all", "a", false, "include inactive services")
}
