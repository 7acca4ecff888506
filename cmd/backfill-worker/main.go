// Package main runs the Backfill Worker (C8) as a long-lived queue
// consumer: it drains whatever Job Queue backend is configured, running
// one backfill pass per job until the process receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/pkg/env"
	"github.com/tokenoracle/pricecore/internal/services/backfill"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
	"github.com/tokenoracle/pricecore/internal/wiring"
)

const shutdownTimeout = 25 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting backfill worker")

	deps, err := wiring.BuildDependencies(ctx, logger)
	if err != nil {
		return fmt.Errorf("wiring dependencies: %w", err)
	}
	defer deps.Close()

	deps.ReportHealth(ctx, logger)

	engine, err := interpolation.New(interpolation.Config{Logger: logger}, deps.Store)
	if err != nil {
		return fmt.Errorf("creating interpolation engine: %w", err)
	}

	worker, err := backfill.New(backfill.Config{Logger: logger}, deps.Store, deps.Upstream, deps.TransferTS, engine)
	if err != nil {
		return fmt.Errorf("creating backfill worker: %w", err)
	}

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- deps.Queue.Consume(ctx, func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error) {
			logger.Info("starting backfill job", "id", job.ID, "token", job.Token, "network", job.Network)
			result, err := worker.Run(ctx, job, func(percent int) {
				if rerr := deps.Queue.ReportProgress(ctx, job.ID, percent); rerr != nil {
					logger.Debug("progress report failed", "id", job.ID, "error", rerr)
				}
			})
			if err != nil {
				logger.Warn("backfill job failed", "id", job.ID, "error", err)
				return nil, err
			}
			logger.Info("backfill job completed", "id", job.ID, "prices_processed", result.PricesProcessed)
			return result, nil
		})
	}()

	logger.Info("worker running, waiting for jobs...")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-consumeDone:
		if err != nil {
			return fmt.Errorf("consume loop exited: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	select {
	case err := <-consumeDone:
		if err != nil {
			logger.Error("consume loop returned error during shutdown", "error", err)
		}
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out waiting for in-flight job")
	}

	return nil
}
