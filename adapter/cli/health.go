package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database, Redis, RabbitMQ and calendar dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		health := c.Health.Check(cmd.Context())

		names := make([]string, 0, len(health.Checks))
		for name := range health.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status: %s\n", health.Status)
		for _, name := range names {
			check := health.Checks[name]
			fmt.Fprintf(out, "  %-10s %s", name, check.Status)
			if check.Message != "" {
				fmt.Fprintf(out, " (%s)", check.Message)
			}
			fmt.Fprintln(out)
		}
		if !health.Ready() {
			return fmt.Errorf("not ready")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
