// Package redisqueue is the default Job Queue (C7) backend: a redis-go
// client managing a waiting list, a delayed sorted set for backoff, a JSON
// string key per job for progress/metadata, and capped lists for completed/failed
// retention, matching the durable-queue shape sketched by §9's own framing
// of "the Queue (if Redis-backed)".
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.JobQueue = (*Queue)(nil)

const (
	completedRetention = 100
	failedRetention    = 50
	pollInterval       = 500 * time.Millisecond
	blockTimeout       = 2 * time.Second
)

// Config holds Redis job queue configuration.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "pricecore:queue",
	}
}

// Queue is a Redis-backed implementation of the outbound.JobQueue port.
type Queue struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// jobRecord is the JSON payload stored under each job's key.
type jobRecord struct {
	ID        string                 `json:"id"`
	Token     string                 `json:"token"`
	Network   entity.Network         `json:"network"`
	StartDate *time.Time             `json:"startDate,omitempty"`
	EndDate   *time.Time             `json:"endDate,omitempty"`
	RequestID string                 `json:"requestId"`
	State     entity.JobState        `json:"state"`
	Progress  int                    `json:"progress"`
	Attempts  int                    `json:"attempts"`
	Result    *entity.BackfillResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// NewQueue creates a Redis-backed Queue.
func NewQueue(cfg Config, logger *slog.Logger) (*Queue, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = ConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Queue{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis-queue"),
	}, nil
}

func (q *Queue) waitingKey() string   { return q.prefix + ":waiting" }
func (q *Queue) delayedKey() string   { return q.prefix + ":delayed" }
func (q *Queue) completedKey() string { return q.prefix + ":completed" }
func (q *Queue) failedKey() string    { return q.prefix + ":failed" }
func (q *Queue) activeKey() string    { return q.prefix + ":active" }
func (q *Queue) jobKey(id string) string { return q.prefix + ":job:" + id }

// Enqueue pushes a job onto the waiting list, returning entity.UnavailableError
// if Redis cannot be reached.
func (q *Queue) Enqueue(ctx context.Context, job *entity.BackfillJob, opts outbound.EnqueueOptions) (string, error) {
	id := uuid.NewString()
	record := &jobRecord{
		ID:        id,
		Token:     job.Token,
		Network:   job.Network,
		StartDate: job.StartDate,
		EndDate:   job.EndDate,
		RequestID: job.RequestID,
		State:     entity.JobStateWaiting,
	}

	if err := q.saveRecord(ctx, record); err != nil {
		return "", &entity.UnavailableError{Subsystem: "queue", Err: err}
	}
	if err := q.client.RPush(ctx, q.waitingKey(), id).Err(); err != nil {
		return "", &entity.UnavailableError{Subsystem: "queue", Err: err}
	}
	return id, nil
}

// Status returns the current status of jobID, or nil if unknown.
func (q *Queue) Status(ctx context.Context, jobID string) (*outbound.JobStatus, error) {
	record, err := q.loadRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return &outbound.JobStatus{
		JobID:    record.ID,
		State:    record.State,
		Progress: record.Progress,
		Result:   record.Result,
		Error:    record.Error,
	}, nil
}

// ReportProgress updates jobID's progress field, read back through Status.
func (q *Queue) ReportProgress(ctx context.Context, jobID string, percent int) error {
	record, err := q.loadRecord(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	record.Progress = percent
	return q.saveRecord(ctx, record)
}

// Stats summarizes queue depth per §4.7.
func (q *Queue) Stats(ctx context.Context) (*outbound.QueueStats, error) {
	waiting, err := q.client.LLen(ctx, q.waitingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting waiting: %w", err)
	}
	active, err := q.client.LLen(ctx, q.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting active: %w", err)
	}
	completed, err := q.client.LLen(ctx, q.completedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting completed: %w", err)
	}
	failed, err := q.client.LLen(ctx, q.failedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting failed: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting delayed: %w", err)
	}
	return &outbound.QueueStats{
		Waiting:   int(waiting),
		Active:    int(active),
		Completed: int(completed),
		Failed:    int(failed),
		Delayed:   int(delayed),
	}, nil
}

// Consume runs the worker loop until ctx is cancelled: it promotes due
// delayed jobs, pops from the waiting list, invokes handler, and applies
// the retry/backoff/retention policy in §4.7.
func (q *Queue) Consume(ctx context.Context, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := q.promoteDelayed(ctx); err != nil {
				q.logger.Warn("promoting delayed jobs failed", "error", err)
			}
		default:
		}

		result, err := q.client.BLPop(ctx, blockTimeout, q.waitingKey()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("blpop failed", "error", err)
			continue
		}

		id := result[1]
		q.processOne(ctx, id, handler)
	}
}

func (q *Queue) processOne(ctx context.Context, id string, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) {
	record, err := q.loadRecord(ctx, id)
	if err != nil || record == nil {
		q.logger.Warn("could not load job record for dequeued id", "id", id, "error", err)
		return
	}

	record.State = entity.JobStateActive
	if err := q.saveRecord(ctx, record); err != nil {
		q.logger.Warn("failed to mark job active", "id", id, "error", err)
	}
	q.client.RPush(ctx, q.activeKey(), id)
	defer q.client.LRem(ctx, q.activeKey(), 1, id)

	job := recordToJob(record)
	backfillResult, herr := handler(ctx, job)

	record, loadErr := q.loadRecord(ctx, id)
	if loadErr != nil || record == nil {
		return
	}

	if herr == nil {
		record.State = entity.JobStateCompleted
		record.Progress = 100
		record.Result = backfillResult
		record.Error = ""
		q.saveRecord(ctx, record)
		q.client.LPush(ctx, q.completedKey(), id)
		q.client.LTrim(ctx, q.completedKey(), 0, completedRetention-1)
		return
	}

	record.Attempts++
	record.Error = herr.Error()

	if record.Attempts >= entity.MaxJobAttempts {
		record.State = entity.JobStateFailed
		q.saveRecord(ctx, record)
		q.client.LPush(ctx, q.failedKey(), id)
		q.client.LTrim(ctx, q.failedKey(), 0, failedRetention-1)
		return
	}

	record.State = entity.JobStateDelayed
	q.saveRecord(ctx, record)
	readyAt := time.Now().Add(entity.NextBackoff(record.Attempts - 1)).Unix()
	q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: id})
}

func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := float64(time.Now().Unix())
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := q.client.ZRem(ctx, q.delayedKey(), id).Err(); err != nil {
			continue
		}
		record, err := q.loadRecord(ctx, id)
		if err != nil || record == nil {
			continue
		}
		record.State = entity.JobStateWaiting
		q.saveRecord(ctx, record)
		q.client.RPush(ctx, q.waitingKey(), id)
	}
	return nil
}

func (q *Queue) saveRecord(ctx context.Context, record *jobRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling job record: %w", err)
	}
	return q.client.Set(ctx, q.jobKey(record.ID), data, 0).Err()
}

func (q *Queue) loadRecord(ctx context.Context, id string) (*jobRecord, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job record: %w", err)
	}
	var record jobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling job record: %w", err)
	}
	return &record, nil
}

func recordToJob(record *jobRecord) *entity.BackfillJob {
	return &entity.BackfillJob{
		ID:        record.ID,
		Token:     record.Token,
		Network:   record.Network,
		StartDate: record.StartDate,
		EndDate:   record.EndDate,
		RequestID: record.RequestID,
		State:     record.State,
		Progress:  record.Progress,
		Attempts:  record.Attempts,
	}
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
