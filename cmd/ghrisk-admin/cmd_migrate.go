package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/database"
)

var migrateFlags struct {
	steps int
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrations(func(mr *database.MigrationRunner) error {
			return mr.Up(cmd.Context())
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations, one by default",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateFlags.steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		return withMigrations(func(mr *database.MigrationRunner) error {
			return mr.Steps(cmd.Context(), -migrateFlags.steps)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrations(func(mr *database.MigrationRunner) error {
			v, dirty, err := mr.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateFlags.steps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func withMigrations(fn func(*database.MigrationRunner) error) error {
	mgr, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.GetConfig()
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations apply to the postgres driver only; %q creates its schema on open", cfg.Database.Driver)
	}

	mr, err := database.NewMigrationRunner(mgr.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer mr.Close()
	return fn(mr)
}
