package cmd

import (
	"context"
	"errors"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/store/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Long:  `Create or upgrade the jobs, attempts and queue tables. Already applied migrations are skipped.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(_ context.Context, _ *config.Config, b *backend.Backend) error {
			if b.Postgres == nil {
				return errors.New("migrate needs a PostgreSQL connection (set JOBSTATS_STORE=postgres or QUEUE_DRIVER=database)")
			}
			if err := postgres.Migrate(b.Postgres.DB()); err != nil {
				return err
			}
			cmd.Println("Migrations applied.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
