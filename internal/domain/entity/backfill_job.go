package entity

import (
	"fmt"
	"strings"
	"time"
)

// JobState is the lifecycle state of a BackfillJob on the Job Queue.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// MaxJobAttempts and InitialBackoff implement the retry policy in §4.7:
// up to 3 attempts, exponential backoff starting at 5s.
const (
	MaxJobAttempts  = 3
	InitialBackoff  = 5 * time.Second
	MaxErrorStrings = 10
)

// BackfillJob is a unit of work consumed by the Backfill Worker.
type BackfillJob struct {
	ID        string
	Token     string
	Network   Network
	StartDate *time.Time
	EndDate   *time.Time
	RequestID string

	State    JobState
	Progress int
	Attempts int

	Result *BackfillResult
	Error  string
}

// NewBackfillJob validates and constructs a BackfillJob payload. The queue
// assigns it an ID and initial state when it is enqueued.
func NewBackfillJob(token string, network Network, startDate, endDate *time.Time, requestID string) (*BackfillJob, error) {
	j := &BackfillJob{
		Token:     strings.ToUpper(token),
		Network:   network,
		StartDate: startDate,
		EndDate:   endDate,
		RequestID: requestID,
		State:     JobStateWaiting,
	}
	if err := j.validate(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *BackfillJob) validate() error {
	if j.Token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if !validNetworks[j.Network] {
		return fmt.Errorf("unsupported network %q", j.Network)
	}
	if j.StartDate != nil && j.EndDate != nil && j.EndDate.Before(*j.StartDate) {
		return fmt.Errorf("end_date %s is before start_date %s", j.EndDate, j.StartDate)
	}
	return nil
}

// NextBackoff returns the delay before the next attempt, doubling from
// InitialBackoff per attempt already made.
func NextBackoff(attemptsSoFar int) time.Duration {
	d := InitialBackoff
	for i := 0; i < attemptsSoFar; i++ {
		d *= 2
	}
	return d
}

// BackfillResult is returned by the worker on completion of a job.
type BackfillResult struct {
	PricesProcessed int
	RangeStart      string
	RangeEnd        string
	DurationMS      int64
	Errors          []string
}

// AppendError appends a human-readable error, capping retention at
// MaxErrorStrings per §3.
func (r *BackfillResult) AppendError(msg string) {
	if len(r.Errors) >= MaxErrorStrings {
		return
	}
	r.Errors = append(r.Errors, msg)
}
