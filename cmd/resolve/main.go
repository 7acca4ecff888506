// Package main is the resolve CLI: a one-shot lookup of a token's USD
// price at a given (or current) timestamp, wired against whichever
// store/cache/queue backends are configured through the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokenoracle/pricecore/internal/pkg/env"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
	"github.com/tokenoracle/pricecore/internal/services/resolver"
	"github.com/tokenoracle/pricecore/internal/wiring"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	token     string
	network   string
	timestamp string
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	token := fs.String("token", "", "Token symbol or address (required)")
	network := fs.String("network", "", "Network name (default: UPSTREAM_DEFAULT_NETWORK or ethereum)")
	timestamp := fs.String("at", "", "RFC3339 timestamp (default: now)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{token: *token, network: *network, timestamp: *timestamp}
	if cfg.token == "" {
		return cliConfig{}, fmt.Errorf("--token is required")
	}
	if cfg.network == "" {
		cfg.network = env.Get("UPSTREAM_DEFAULT_NETWORK", "ethereum")
	}
	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	var at *time.Time
	if cfg.timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, cfg.timestamp)
		if err != nil {
			return fmt.Errorf("invalid --at timestamp (must be RFC3339): %w", err)
		}
		at = &parsed
	}

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

	svc, err := resolver.New(resolver.Config{Logger: logger}, deps.Cache, deps.Store, deps.Upstream, engine)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}

	result, err := svc.Resolve(ctx, cfg.token, cfg.network, at)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	fmt.Printf("%s/%s @ %s: $%.6f (%s)\n",
		result.Token, result.Network, result.Timestamp.Format(time.RFC3339), result.Price, result.Source)

	return nil
}
