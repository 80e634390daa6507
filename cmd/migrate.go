package cmd

import (
	"fmt"
	"strconv"

	"github.com/basedgoydev/greed-farm/config"
	"github.com/basedgoydev/greed-farm/database"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := postgresConfig(cmd)
			if err != nil {
				return err
			}
			return database.MigrateUp(cfg.GetDatabaseURL())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseSteps(args)
			if err != nil {
				return err
			}
			cfg, err := postgresConfig(cmd)
			if err != nil {
				return err
			}
			return database.MigrateDown(cfg.GetDatabaseURL(), steps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := postgresConfig(cmd)
			if err != nil {
				return err
			}
			status, err := database.MigrateStatus(cfg.GetDatabaseURL())
			if err != nil {
				return err
			}
			if !status.Applied {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %d, dirty: %t\n", status.Version, status.Dirty)
			return nil
		},
	})

	return cmd
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}

func postgresConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend != config.StoragePostgres {
		return nil, fmt.Errorf("migrations need the %s storage backend, configured %q", config.StoragePostgres, cfg.StorageBackend)
	}
	return cfg, nil
}
