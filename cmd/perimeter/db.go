package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/internal/schema"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the application database schema",
		Long: `Schema migrations are read from SCHEMA_DIR and applied to the database
published by the last apply, using DB_USERNAME and DB_PASSWORD.`,
	}

	cmd.AddCommand(
		newDBMigrateCmd(a, "upgrade", "Apply every pending migration", (*schema.Migrator).Advance),
		newDBMigrateCmd(a, "downgrade", "Revert the most recent migration", (*schema.Migrator).Revert),
		newDBMigrateCmd(a, "version", "Print the current schema version", (*schema.Migrator).Version),
	)

	return cmd
}

func newDBMigrateCmd(a *app, use, short string, step func(*schema.Migrator, context.Context) (int64, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				m, err := s.Migrator(cmd.Context())
				if err != nil {
					return err
				}
				defer m.Close()

				v, err := step(m, cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
				return nil
			})
		},
	}
}
