package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/acosmic/acosmibot-api/internal/config"
	"github.com/acosmic/acosmibot-api/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			slog.SetDefault(newLogger(cfg, os.Stderr))

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if err := repository.Migrate(db.DB); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}
