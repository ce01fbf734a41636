package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the messages table and notify trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			pool, err := database.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("schema up to date", "db", cfg.DBName)
			return nil
		},
	}
}
