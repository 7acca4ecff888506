// Package sqs is a secondary Job Queue (C7) backend, selected when
// QUEUE_URI names an SQS queue URL. It provides at-least-once delivery via
// SQS visibility timeout and its own redrive policy rather than the
// application-level retry bookkeeping the redis backend implements
// itself; per-job progress/result state is tracked in this process's
// memory since SQS has no native progress concept.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.JobQueue = (*Queue)(nil)

// sqsAPI defines the subset of SQS operations needed by Queue.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Config holds SQS queue configuration.
type Config struct {
	QueueURL        string
	WaitTimeSeconds int32
}

// ConfigDefaults returns sensible defaults.
func ConfigDefaults() Config {
	return Config{WaitTimeSeconds: 20}
}

type message struct {
	ID        string                 `json:"id"`
	Token     string                 `json:"token"`
	Network   entity.Network         `json:"network"`
	StartDate *time.Time             `json:"startDate,omitempty"`
	EndDate   *time.Time             `json:"endDate,omitempty"`
	RequestID string                 `json:"requestId"`
	Attempts  int                    `json:"attempts"`
}

// Queue is an SQS-backed implementation of outbound.JobQueue. Status
// tracking is best-effort in-process since SQS itself does not expose a
// query-by-id API; Status only reflects jobs this process has seen.
type Queue struct {
	client   sqsAPI
	queueURL string
	config   Config
	logger   *slog.Logger

	mu       sync.Mutex
	statuses map[string]*outbound.JobStatus
}

// NewQueue creates an SQS-backed Queue.
func NewQueue(cfg aws.Config, queueConfig Config, logger *slog.Logger) (*Queue, error) {
	if queueConfig.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := ConfigDefaults()
	if queueConfig.WaitTimeSeconds == 0 {
		queueConfig.WaitTimeSeconds = defaults.WaitTimeSeconds
	}
	return &Queue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueConfig.QueueURL,
		config:   queueConfig,
		logger:   logger.With("component", "sqs-queue"),
		statuses: make(map[string]*outbound.JobStatus),
	}, nil
}

// Enqueue sends job as an SQS message body.
func (q *Queue) Enqueue(ctx context.Context, job *entity.BackfillJob, opts outbound.EnqueueOptions) (string, error) {
	id := uuid.NewString()
	msg := message{
		ID:        id,
		Token:     job.Token,
		Network:   job.Network,
		StartDate: job.StartDate,
		EndDate:   job.EndDate,
		RequestID: job.RequestID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", &entity.UnavailableError{Subsystem: "queue", Err: err}
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", &entity.UnavailableError{Subsystem: "queue", Err: err}
	}

	q.setStatus(id, &outbound.JobStatus{JobID: id, State: entity.JobStateWaiting})
	return id, nil
}

// Status returns this process's last-known status for jobID, or nil if
// this process has not seen it.
func (q *Queue) Status(ctx context.Context, jobID string) (*outbound.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[jobID], nil
}

// Stats reports zero-valued fields SQS cannot answer without a dedicated
// CloudWatch query; it reflects only in-process tracked jobs.
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

// Consume long-polls SQS, invokes handler per message, and deletes the
// message on success. On failure it lets SQS's own visibility timeout and
// redrive policy handle retry.
func (q *Queue) Consume(ctx context.Context, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     q.config.WaitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("receive message failed", "error", err)
			continue
		}

		for _, raw := range out.Messages {
			q.processOne(ctx, raw, handler)
		}
	}
}

func (q *Queue) processOne(ctx context.Context, raw sqstypes.Message, handler func(ctx context.Context, job *entity.BackfillJob) (*entity.BackfillResult, error)) {
	if raw.Body == nil {
		return
	}
	var msg message
	if err := json.Unmarshal([]byte(*raw.Body), &msg); err != nil {
		q.logger.Warn("failed to decode job message", "error", err)
		return
	}

	q.setStatus(msg.ID, &outbound.JobStatus{JobID: msg.ID, State: entity.JobStateActive})

	job := &entity.BackfillJob{
		ID:        msg.ID,
		Token:     msg.Token,
		Network:   msg.Network,
		StartDate: msg.StartDate,
		EndDate:   msg.EndDate,
		RequestID: msg.RequestID,
	}

	result, err := handler(ctx, job)
	if err != nil {
		q.setStatus(msg.ID, &outbound.JobStatus{JobID: msg.ID, State: entity.JobStateFailed, Error: err.Error()})
		q.logger.Warn("job handler failed, leaving message for SQS redrive", "id", msg.ID, "error", err)
		return
	}

	q.setStatus(msg.ID, &outbound.JobStatus{JobID: msg.ID, State: entity.JobStateCompleted, Progress: 100, Result: result})

	if raw.ReceiptHandle != nil {
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: raw.ReceiptHandle,
		}); err != nil {
			q.logger.Warn("failed to delete completed message", "id", msg.ID, "error", err)
		}
	}
}

// ReportProgress updates id's in-process progress tracking.
func (q *Queue) ReportProgress(ctx context.Context, id string, percent int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if status, ok := q.statuses[id]; ok {
		status.Progress = percent
	}
	return nil
}

func (q *Queue) setStatus(id string, status *outbound.JobStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[id] = status
}

// Ping sends a non-waiting receive of at most one message as a lightweight
// reachability check; a message it happens to receive is neither processed
// nor deleted here.
func (q *Queue) Ping(ctx context.Context) error {
	_, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     0,
	})
	return err
}

// Close is a no-op; the SQS client holds no persistent connection.
func (q *Queue) Close() error {
	return nil
}
