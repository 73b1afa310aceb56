package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// the app would run migrations itself when DB_AUTO_MIGRATE is set
		cfg.DatabaseAutoMigrate = false
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.Migrate(); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		})
	},
}
