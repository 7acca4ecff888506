// Package main is the schedule CLI: create, list, enable/disable, and
// manually trigger Job Registry entries against whichever Job Queue
// backend is configured through the environment. Schedule bookkeeping
// itself lives only in this process's memory (§9 Registry persistence);
// jobs already handed to the queue survive a restart regardless, since
// durability is the queue's job, not the registry's.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tokenoracle/pricecore/internal/pkg/env"
	"github.com/tokenoracle/pricecore/internal/services/registry"
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

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: schedule <create|list|enable|disable|run-now|delete> [flags]")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	queue, err := wiring.BuildQueue(ctx, logger)
	if err != nil {
		return fmt.Errorf("wiring queue: %w", err)
	}
	defer queue.Close()

	reg, err := registry.New(registry.Config{Logger: logger}, queue)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}

	switch args[0] {
	case "create":
		return runCreate(ctx, reg, args[1:])
	case "list":
		return runList(ctx, reg)
	case "enable":
		return runSetEnabled(ctx, reg, args[1:], true)
	case "disable":
		return runSetEnabled(ctx, reg, args[1:], false)
	case "run-now":
		return runRunNow(ctx, reg, args[1:])
	case "delete":
		return runDelete(ctx, reg, args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCreate(ctx context.Context, reg *registry.Registry, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	token := fs.String("token", "", "Token symbol or address (required)")
	network := fs.String("network", "", "Network name (required)")
	interval := fs.String("interval", "24h", "Backfill interval")
	enabled := fs.Bool("enabled", true, "Whether the schedule starts enabled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" || *network == "" {
		return fmt.Errorf("--token and --network are required")
	}

	record, err := reg.Create(ctx, *token, *network, *interval, *enabled)
	if err != nil {
		return err
	}
	fmt.Printf("created schedule %s (%s/%s, enabled=%v)\n", record.ID, record.Token, record.Network, record.Enabled)
	return nil
}

func runList(ctx context.Context, reg *registry.Registry) error {
	listing, err := reg.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range listing.Jobs {
		fmt.Printf("%s\t%s/%s\tenabled=%v\n", record.ID, record.Token, record.Network, record.Enabled)
	}
	fmt.Printf("total=%d active=%d\n", listing.Total, listing.Active)
	return nil
}

func runSetEnabled(ctx context.Context, reg *registry.Registry, args []string, enabled bool) error {
	fs := flag.NewFlagSet("enable/disable", flag.ContinueOnError)
	id := fs.String("id", "", "Schedule ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	record, err := reg.Update(ctx, *id, enabled)
	if err != nil {
		return err
	}
	fmt.Printf("schedule %s enabled=%v\n", record.ID, record.Enabled)
	return nil
}

func runRunNow(ctx context.Context, reg *registry.Registry, args []string) error {
	fs := flag.NewFlagSet("run-now", flag.ContinueOnError)
	id := fs.String("id", "", "Schedule ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	jobID, err := reg.RunNow(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued job %s\n", jobID)
	return nil
}

func runDelete(ctx context.Context, reg *registry.Registry, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "Schedule ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if err := reg.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted schedule %s\n", *id)
	return nil
}
