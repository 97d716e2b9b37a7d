package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/cli"
	"github.com/felixgeelhaar/therapia/internal/catalog/application/commands"
)

var input commands.ServiceInput

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a service",
	Long: `Create a bookable service.

Examples:
  therapia service create --slug individual --name "Individual session" --price 5000.00
  therapia service create --slug couples --name "Couples session" --price 8000 --deposit 2000 --format offline --duration 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		id, err := c.CreateServiceHandler.Handle(cmd.Context(), commands.CreateServiceCommand{
			Actor:        cli.Operator(),
			ServiceInput: input,
		})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created service %s (%s)\n", input.Slug, id)
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <id-or-slug>",
	Short: "Accept bookings for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <id-or-slug>",
	Short: "Stop accepting bookings for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

func setActive(cmd *cobra.Command, ref string, active bool) error {
	c, err := cli.ContainerFor(cmd.Context())
	if err != nil {
		return err
	}
	s, err := c.GetServiceHandler.Handle(cmd.Context(), ref)
	if err != nil {
		return err
	}
	err = c.UpdateServiceHandler.Handle(cmd.Context(), commands.UpdateServiceCommand{
		Actor:     cli.Operator(),
		ServiceID: s.ID,
		Active:    &active,
		ServiceInput: commands.ServiceInput{
			Slug:               s.Slug,
			Name:               s.Name,
			Price:              s.Price,
			Currency:           s.Currency,
			Deposit:            s.Deposit,
			DurationMinutes:    s.DurationMinutes,
			Formats:            s.Formats,
			CancelFreeHours:    s.CancelFreeHours,
			CancelPartialHours: s.CancelPartialHours,
			RescheduleMinHours: s.RescheduleMinHours,
		},
	})
	if err != nil {
		return err
	}
	state := "inactive"
	if active {
		state = "active"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Service %s is now %s\n", shortID(s.ID), state)
	return nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func init() {
	createCmd.Flags().StringVar(&input.Slug, "slug", "", "URL-safe identifier (required)")
	createCmd.Flags().StringVar(&input.Name, "name", "", "display name (required)")
	createCmd.Flags().StringVar(&input.Price, "price", "", "price, e.g. 5000.00 (required)")
	createCmd.Flags().StringVar(&input.Currency, "currency", "RUB", "ISO currency code")
	createCmd.Flags().StringVar(&input.Deposit, "deposit", "", "deposit charged at booking instead of the full price")
	createCmd.Flags().IntVar(&input.DurationMinutes, "duration", 60, "session length in minutes")
	createCmd.Flags().StringSliceVar(&input.Formats, "format", []string{"online"}, "formats: online, offline")
	createCmd.Flags().IntVar(&input.CancelFreeHours, "cancel-free-hours", 24, "full refund at least this many hours ahead")
	createCmd.Flags().IntVar(&input.CancelPartialHours, "cancel-partial-hours", 6, "partial refund at least this many hours ahead")
	createCmd.Flags().IntVar(&input.RescheduleMinHours, "reschedule-min-hours", 24, "reschedule allowed at least this many hours ahead")
	_ = createCmd.MarkFlagRequired("slug")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("price")
}
