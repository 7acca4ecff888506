package outbound

import (
	"context"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

// EnqueueOptions is passed with each job to Enqueue. None of the queue
// backends in this repository reads MaxAttempts: the redis backend always
// allows entity.MaxJobAttempts attempts, the SQS backend leaves retries to
// SQS redrive, and the in-memory backend makes a single attempt.
type EnqueueOptions struct {
	MaxAttempts int
}

// JobStatus is the point-in-time status returned by JobQueue.Status.
type JobStatus struct {
	JobID    string
	State    entity.JobState
	Progress int
	Result   *entity.BackfillResult
	Error    string
}

// QueueStats summarizes queue depth across states, per §4.7.
type QueueStats struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
}

// JobQueue is the Job Queue port (C7): a durable work queue with retries,
// exponential backoff, completed/failed retention, and progress reporting.
// When the backend is unreachable, Enqueue returns entity.UnavailableError
// rather than blocking callers forever.
type JobQueue interface {
	Enqueue(ctx context.Context, job *entity.BackfillJob, opts EnqueueOptions) (jobID string, err error)
	Status(ctx context.Context, jobID string) (*JobStatus, error)
	Stats(ctx context.Context) (*QueueStats, error)

	// ReportProgress records a mid-run progress checkpoint for jobID, read
	// back through Status. Called from within a Consume handler.
	ReportProgress(ctx context.Context, jobID string, percent int) error

	// Consume blocks, invoking handler for each dequeued job until ctx is
	// cancelled. handler's returned error triggers the backend's failure
	// path (retry with backoff in the redis backend, SQS redrive in the SQS
	// backend, a failed status with no retry in the in-memory backend); a
	// nil error reports completion with the handler's returned result.
	Consume(ctx context.Context, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) error

	Ping(ctx context.Context) error
	Close() error
}
