// Package main applies pending database migrations and exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenoracle/pricecore/db/migrator"
	"github.com/tokenoracle/pricecore/internal/pkg/env"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	connStr := env.Get("STORE_URI", "")
	if connStr == "" {
		return fmt.Errorf("STORE_URI environment variable is required")
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer pool.Close()

	m := migrator.New(pool, "./db/migrations")
	if err := m.ApplyAll(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	logger.Info("all migrations up to date")
	return nil
}
