package availability

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/availability/application/commands"
)

var (
	addService  string
	addStart    string
	addEnd      string
	addTZ       string
	addRepeat   string
	addInterval int
	addUntil    string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Publish an availability window",
	Long: `Publish a window clients can book into. Without --service the window
is usable by every service. --repeat expands it until --until (inclusive).

Examples:
  therapia availability add --start "2026-03-02 10:00" --end "2026-03-02 18:00" --tz Europe/Moscow
  therapia availability add --start "2026-03-02 10:00" --end "2026-03-02 14:00" --repeat weekdays --until 2026-03-27`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		tz := addTZ
		if tz == "" {
			tz = c.Config.CalendarTZ
		}

		command := commands.CreateAvailabilityCommand{Actor: cli.Operator(), TZ: tz}
		if command.ServiceID, err = parseOptionalID(addService); err != nil {
			return err
		}
		if command.Start, err = parseLocalTime(addStart, tz); err != nil {
			return err
		}
		if command.End, err = parseLocalTime(addEnd, tz); err != nil {
			return err
		}
		if addRepeat != "" {
			if addUntil == "" {
				return fmt.Errorf("--until is required with --repeat")
			}
			until, err := parseLocalTime(addUntil, tz)
			if err != nil {
				return err
			}
			command.Recurrence = &commands.RecurrenceInput{
				Frequency: addRepeat,
				Interval:  addInterval,
				EndDate:   until,
			}
		}

		result, err := c.CreateAvailabilityHandler.Handle(cmd.Context(), command)
		if err != nil {
			return fmt.Errorf("failed to create availability: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %d window(s)\n", len(result.SlotIDs))
		return nil
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <id>",
	Short: "Block a window so it cannot be booked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], "blocked")
	},
}

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Make a blocked window bookable again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], "available")
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Remove a window",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		if err := c.DeleteSlotHandler.Handle(cmd.Context(), commands.DeleteSlotCommand{
			Actor:  cli.Operator(),
			SlotID: id,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted window %s\n", id.String()[:8])
		return nil
	},
}

func setStatus(cmd *cobra.Command, ref, status string) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid ID %q: %w", ref, err)
	}
	c, err := cli.ContainerFor(cmd.Context())
	if err != nil {
		return err
	}
	if err := c.SetSlotStatusHandler.Handle(cmd.Context(), commands.SetSlotStatusCommand{
		Actor:  cli.Operator(),
		SlotID: id,
		Status: status,
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Window %s is now %s\n", id.String()[:8], status)
	return nil
}

func init() {
	addCmd.Flags().StringVar(&addService, "service", "", "restrict the window to one service ID")
	addCmd.Flags().StringVar(&addStart, "start", "", "window start (required)")
	addCmd.Flags().StringVar(&addEnd, "end", "", "window end (required)")
	addCmd.Flags().StringVar(&addTZ, "tz", "", "time zone of the window (default CALENDAR_TZ)")
	addCmd.Flags().StringVar(&addRepeat, "repeat", "", "repeat daily, weekly or weekdays")
	addCmd.Flags().IntVar(&addInterval, "interval", 1, "repeat every N periods")
	addCmd.Flags().StringVar(&addUntil, "until", "", "last date of the repetition")
	_ = addCmd.MarkFlagRequired("start")
	_ = addCmd.MarkFlagRequired("end")
}
