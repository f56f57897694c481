// Package queue defines the job payload the API tier hands off to the
// worker tier, and the narrow queue port the job handler dequeues from.
package queue

import (
	"context"
	"time"
)

// Job is the queue-borne payload that triggers one workflow execution
// attempt: {executionId, workflowId, triggerPayload, userId}.
type Job struct {
	ExecutionID    string                 `json:"executionId"`
	WorkflowID     string                 `json:"workflowId"`
	TriggerPayload map[string]interface{} `json:"triggerPayload"`
	UserID         string                 `json:"userId"`
	EnqueuedAt     time.Time              `json:"enqueuedAt"`
	RetryCount     int                    `json:"retryCount"`
}

// Port is the worker's view of the queue: enqueue a job, block for the
// next one, and acknowledge or requeue on failure. Distributed
// multi-worker coordination beyond this — leases, exactly-once delivery —
// is explicitly out of scope (spec Non-goals); a Port only needs to hand
// each job to exactly one worker slot at a time on a best-effort basis.
type Port interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job Job) error
	Fail(ctx context.Context, job Job, requeue bool) error
	Depth(ctx context.Context) (int, error)
	Close() error
}
