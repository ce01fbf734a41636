package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/cache"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/database"
	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulsefeed/internal/repository/postgres"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pulsefeed",
		Short:         "Live message feeds with optimistic sends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTailCmd(),
		newSendCmd(),
		newTokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// openStore returns the configured message store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.MessageStore, func(), error) {
	if cfg.Store == "memory" {
		logger.Info("using in-memory store")
		return memory.NewMessageRepo(), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", "host", cfg.DBHost, "db", cfg.DBName)
	return postgresrepo.NewMessageRepo(pool, logger), pool.Close, nil
}

// openCache returns nil when no cache path is configured.
func openCache(cfg *config.Config, logger *slog.Logger) (*cache.SQLiteCache, error) {
	if cfg.CachePath == "" {
		return nil, nil
	}
	c, err := cache.OpenSQLite(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	logger.Info("feed cache enabled", "path", cfg.CachePath)
	return c, nil
}
