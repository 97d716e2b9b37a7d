package waitlist

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/waitlist/application/queries"
)

// Cmd is the waitlist command group
var Cmd = &cobra.Command{
	Use:   "waitlist",
	Short: "Review waitlist requests",
}

var listCmd = &cobra.Command{
	Use:     "list <service-id-or-slug>",
	Short:   "List waitlist requests for a service",
	Aliases: []string{"ls"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		service, err := c.GetServiceHandler.Handle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		requests, err := c.ListWaitlistHandler.Handle(cmd.Context(), queries.ListRequestsQuery{
			Actor:     cli.Operator(),
			ServiceID: service.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to list waitlist: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(requests) == 0 {
			fmt.Fprintf(out, "No waitlist requests for %s.\n", service.Slug)
			return nil
		}
		fmt.Fprintf(out, "Waitlist for %s (%d):\n", service.Slug, len(requests))
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, r := range requests {
			fmt.Fprintf(out, "%s  %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.ContactInfo)
			if r.PreferredStart != nil && r.PreferredEnd != nil {
				fmt.Fprintf(out, "   Prefers: %s - %s UTC\n",
					r.PreferredStart.UTC().Format("2006-01-02 15:04"),
					r.PreferredEnd.UTC().Format("15:04"))
			}
			fmt.Fprintf(out, "   ID: %s\n", r.ID)
		}
		return nil
	},
}

func init() {
	Cmd.AddCommand(listCmd)
}
