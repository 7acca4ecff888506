// Package registry implements the Job Registry (C6): an in-memory table of
// scheduled backfill definitions, keyed by (token, network) and guarded by
// a single mutex.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/inbound"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

// Config configures the Registry.
type Config struct {
	Logger *slog.Logger
}

// ConfigDefaults returns the default Config.
func ConfigDefaults() Config {
	return Config{Logger: slog.Default()}
}

// Registry implements inbound.JobRegistry. Records live only in process
// memory; persistence is a deliberate non-goal (§4.6).
type Registry struct {
	config Config
	queue  outbound.JobQueue
	logger *slog.Logger

	mu    sync.Mutex
	byID  map[string]*entity.ScheduleRecord
	byKey map[string]string // ScheduleRecord.Key() -> id
}

var _ inbound.JobRegistry = (*Registry)(nil)

// New constructs a Registry backed by queue.
func New(config Config, queue outbound.JobQueue) (*Registry, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	defaults := ConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Registry{
		config: config,
		queue:  queue,
		logger: config.Logger.With("component", "job-registry"),
		byID:   make(map[string]*entity.ScheduleRecord),
		byKey:  make(map[string]string),
	}, nil
}

// Create adds a new ScheduleRecord, failing with *entity.AlreadyExistsError
// if one already exists for the case-insensitive (token, network) pair.
func (r *Registry) Create(ctx context.Context, token, network, interval string, enabled bool) (*entity.ScheduleRecord, error) {
	net, err := entity.ParseNetwork(network)
	if err != nil {
		return nil, entity.NewInvalidInputError("%v", err)
	}

	key := entity.ScheduleKey(token, net)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byKey[key]; ok {
		return nil, &entity.AlreadyExistsError{ExistingID: existingID}
	}

	record, err := entity.NewScheduleRecord(uuid.NewString(), token, net, interval, enabled)
	if err != nil {
		return nil, entity.NewInvalidInputError("%v", err)
	}

	r.byID[record.ID] = record
	r.byKey[key] = record.ID

	if enabled {
		r.enqueueLocked(ctx, record)
	}

	r.logger.Info("schedule created", "id", record.ID, "token", record.Token, "network", record.Network)
	return record, nil
}

// List returns every ScheduleRecord plus total/active counts.
func (r *Registry) List(ctx context.Context) (*inbound.ScheduleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing := &inbound.ScheduleListing{Jobs: make([]*entity.ScheduleRecord, 0, len(r.byID))}
	for _, record := range r.byID {
		listing.Jobs = append(listing.Jobs, record)
		listing.Total++
		if record.Enabled {
			listing.Active++
		}
	}
	return listing, nil
}

// Get returns the record for id, or entity.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*entity.ScheduleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return record, nil
}

// Update flips enabled on the record for id. Enabling re-enqueues a
// backfill job.
func (r *Registry) Update(ctx context.Context, id string, enabled bool) (*entity.ScheduleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}

	wasEnabled := record.Enabled
	record.Enabled = enabled
	if enabled && !wasEnabled {
		r.enqueueLocked(ctx, record)
	}
	return record, nil
}

// Delete removes the record for id.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return entity.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byKey, record.Key())
	return nil
}

// RunNow enqueues a manual backfill run for id, refusing with
// entity.ErrDisabled if the schedule is disabled.
func (r *Registry) RunNow(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return "", entity.ErrNotFound
	}
	if !record.Enabled {
		return "", entity.ErrDisabled
	}
	return r.enqueueLocked(ctx, record)
}

// enqueueLocked must be called with r.mu held. A queue-unavailable error is
// a soft failure per §4.7: the schedule remains recorded.
func (r *Registry) enqueueLocked(ctx context.Context, record *entity.ScheduleRecord) (string, error) {
	job, err := entity.NewBackfillJob(record.Token, record.Network, nil, nil, uuid.NewString())
	if err != nil {
		r.logger.Error("failed to build backfill job", "error", err)
		return "", err
	}

	jobID, err := r.queue.Enqueue(ctx, job, outbound.EnqueueOptions{})
	if err != nil {
		r.logger.Warn("enqueue failed, schedule remains recorded", "id", record.ID, "error", err)
		return "", &entity.UnavailableError{Subsystem: "queue", Err: err}
	}

	now := time.Now().UTC()
	record.LastRun = &now
	return jobID, nil
}
