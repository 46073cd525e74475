package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nearby/core-go/internal/config"
	"nearby/core-go/internal/db"
	"nearby/core-go/internal/httpapi"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("migrate: database_url is not set")
			}
			logger := httpapi.NewLogger(httpapi.LoggerOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})

			pool, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			applied, err := pool.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				logger.Info().Msg("schema up to date")
				return nil
			}
			logger.Info().Strs("applied", applied).Msg("migrations applied")
			return nil
		},
	}
}
