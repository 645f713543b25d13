package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-portal/internal/persistence"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is not set")
		}
		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()

		applied, err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), migrationsDir, logger)
		if err != nil {
			return err
		}
		if applied == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", applied)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", persistence.DefaultMigrationsDir, "path to migrations directory")
}
