package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/availability/application/queries"
)

var (
	listService string
	listStatus  string
	listSource  string
	listFrom    string
	listTo      string
	listTZ      string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List availability windows",
	Aliases: []string{"ls"},
	Long: `List availability windows, by default those of the next two weeks.

Examples:
  therapia availability list
  therapia availability list --status blocked --source external_calendar
  therapia availability list --from "2026-03-01" --to "2026-03-08" --tz Europe/Moscow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		tz := listTZ
		if tz == "" {
			tz = c.Config.CalendarTZ
		}

		query := queries.ListSlotsQuery{
			Actor:  cli.Operator(),
			Status: listStatus,
			Source: listSource,
			From:   c.Clock.Now(),
		}
		if query.ServiceID, err = parseOptionalID(listService); err != nil {
			return err
		}
		if listFrom != "" {
			if query.From, err = parseLocalTime(listFrom, tz); err != nil {
				return err
			}
		}
		query.To = query.From.Add(14 * 24 * time.Hour)
		if listTo != "" {
			if query.To, err = parseLocalTime(listTo, tz); err != nil {
				return err
			}
		}

		slots, err := c.ListSlotsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to list availability: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(slots) == 0 {
			fmt.Fprintln(out, "No availability found.")
			return nil
		}
		fmt.Fprintf(out, "Availability (%d):\n", len(slots))
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, s := range slots {
			loc := time.UTC
			if l, err := time.LoadLocation(s.TZ); err == nil {
				loc = l
			}
			scope := "all services"
			if s.ServiceID != nil {
				scope = "service " + s.ServiceID.String()[:8]
			}
			fmt.Fprintf(out, "[%s] %s - %s %s (%s, %s)\n",
				s.Status,
				s.Start.In(loc).Format("Mon 2006-01-02 15:04"),
				s.End.In(loc).Format("15:04"),
				s.TZ, scope, s.Source,
			)
			fmt.Fprintf(out, "   ID: %s\n", s.ID)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listService, "service", "", "only windows usable by this service ID")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (available, reserved, blocked)")
	listCmd.Flags().StringVar(&listSource, "source", "", "filter by source (internal, external_calendar)")
	listCmd.Flags().StringVar(&listFrom, "from", "", "start of the range (default now)")
	listCmd.Flags().StringVar(&listTo, "to", "", "end of the range (default from + 14 days)")
	listCmd.Flags().StringVar(&listTZ, "tz", "", "time zone for --from/--to (default CALENDAR_TZ)")
}
