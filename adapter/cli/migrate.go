package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/migrations"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
	Long: `Apply or roll back the embedded Postgres migrations.

SQLite databases are migrated automatically when the application opens them.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrations.PostgresMigrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrations.PostgresMigrator) error {
			if err := m.Down(migrateSteps); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Set the recorded version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrator(func(m *migrations.PostgresMigrator) error {
			if err := m.Force(version); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrations.PostgresMigrator) error {
			return printVersion(cmd, m)
		})
	},
}

func withMigrator(fn func(*migrations.PostgresMigrator) error) error {
	a := GetApp()
	if a == nil || a.Config == nil {
		return errors.New("application not initialized - configuration required")
	}
	if a.Config.LocalMode {
		return errors.New("migrate manages Postgres only; SQLite databases migrate on startup")
	}
	m, err := migrations.NewPostgresMigrator(a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			Logger().Warn("failed to close migrator", "error", err)
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *migrations.PostgresMigrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateForceCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
