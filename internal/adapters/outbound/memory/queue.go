package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.JobQueue = (*Queue)(nil)

// Queue is an in-memory outbound.JobQueue. It has no durability and no
// background worker of its own; Consume drains whatever has been enqueued
// synchronously and then blocks until ctx is cancelled, matching §4.7's
// "absence degrades scheduling to synchronous best-effort" contract when
// used as the fallback backend.
type Queue struct {
	mu       sync.Mutex
	pending  []*entity.BackfillJob
	statuses map[string]*outbound.JobStatus
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	return &Queue{statuses: make(map[string]*outbound.JobStatus)}
}

func (q *Queue) Enqueue(ctx context.Context, job *entity.BackfillJob, opts outbound.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	job.ID = id
	job.State = entity.JobStateWaiting
	q.pending = append(q.pending, job)
	q.statuses[id] = &outbound.JobStatus{JobID: id, State: entity.JobStateWaiting}
	return id, nil
}

func (q *Queue) Status(ctx context.Context, jobID string) (*outbound.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[jobID], nil
}

func (q *Queue) Stats(ctx context.Context) (*outbound.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &outbound.QueueStats{}
	for _, s := range q.statuses {
		switch s.State {
		case entity.JobStateWaiting:
			stats.Waiting++
		case entity.JobStateActive:
			stats.Active++
		case entity.JobStateCompleted:
			stats.Completed++
		case entity.JobStateFailed:
			stats.Failed++
		case entity.JobStateDelayed:
			stats.Delayed++
		}
	}
	return stats, nil
}

func (q *Queue) Consume(ctx context.Context, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) error {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			<-ctx.Done()
			return nil
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.statuses[job.ID] = &outbound.JobStatus{JobID: job.ID, State: entity.JobStateActive}
		q.mu.Unlock()

		result, err := handler(ctx, job)

		q.mu.Lock()
		if err != nil {
			q.statuses[job.ID] = &outbound.JobStatus{JobID: job.ID, State: entity.JobStateFailed, Error: err.Error()}
		} else {
			q.statuses[job.ID] = &outbound.JobStatus{JobID: job.ID, State: entity.JobStateCompleted, Progress: 100, Result: result}
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// ReportProgress updates jobID's in-memory progress.
func (q *Queue) ReportProgress(ctx context.Context, jobID string, percent int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if status, ok := q.statuses[jobID]; ok {
		status.Progress = percent
	}
	return nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return nil
}

func (q *Queue) Close() error {
	return nil
}
