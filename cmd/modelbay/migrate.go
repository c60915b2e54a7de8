package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelbay-labs/modelbay-go/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies the embedded schema migrations to the database named by DATABASE_URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := postgres.ConfigFromEnv()
			if err != nil {
				return err
			}
			db, err := postgres.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := postgres.Migrate(db); err != nil {
				return err
			}
			version, err := postgres.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at migration version %d\n", version)
			return nil
		},
	}
	return cmd
}
