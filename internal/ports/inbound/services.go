// Package inbound contains the primary/inbound ports: the use cases the
// core exposes to callers (CLI, HTTP handlers, tests), independent of
// transport.
package inbound

import (
	"context"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

// ResolveResult is the Resolver's success shape, per §6 Resolve response.
type ResolveResult struct {
	Price     float64
	Source    entity.Source
	Timestamp time.Time
	Token     string
	Network   entity.Network
}

// PriceResolver is the Price Resolver use case (C5).
type PriceResolver interface {
	Resolve(ctx context.Context, token, network string, at *time.Time) (*ResolveResult, error)
}

// ScheduleListing is the Job Registry's list() response shape, per §6.
type ScheduleListing struct {
	Jobs   []*entity.ScheduleRecord
	Total  int
	Active int
}

// JobRegistry is the Job Registry use case (C6).
type JobRegistry interface {
	Create(ctx context.Context, token, network, interval string, enabled bool) (*entity.ScheduleRecord, error)
	List(ctx context.Context) (*ScheduleListing, error)
	Get(ctx context.Context, id string) (*entity.ScheduleRecord, error)
	Update(ctx context.Context, id string, enabled bool) (*entity.ScheduleRecord, error)
	Delete(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string) (jobID string, err error)
}

// HealthChecker reports which optional subsystems are reachable, surfaced
// by the composition root as startup log lines, not an HTTP endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
