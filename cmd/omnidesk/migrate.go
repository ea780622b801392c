package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/omnidesk/omnidesk/internal/db"
	"github.com/omnidesk/omnidesk/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	for _, direction := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: "Migrate " + direction,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.Migrate(logger.L, cfg.Postgres, direction); err != nil {
					return err
				}
				logger.L.Info("migrations applied", slog.String("direction", direction))
				return nil
			},
		})
	}
	return cmd
}
