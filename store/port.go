// Package store implements the narrow persistence port the job handler and
// engine use to load workflow definitions and record execution history: a
// subset of the teacher's generic checkpoint/replay store narrowed to the
// six operations an execution actually needs, with checkpoint replay,
// idempotency keys, and the transactional event outbox dropped entirely —
// this engine re-derives state from a fresh snapshot stream rather than
// resuming from a recorded frontier.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/retrieval"
)

// ErrNotFound is returned by LoadWorkflow when no workflow exists for the
// given ID.
var ErrNotFound = errors.New("store: not found")

// Workflow is the minimal view of a persisted workflow definition the
// engine needs to run it.
type Workflow struct {
	ID     string
	UserID string
	Nodes  []engine.WorkflowNode
	Edges  []engine.WorkflowEdge
}

// StatusUpdate carries the optional fields of an execution status
// transition; zero-value fields are left untouched by implementations.
type StatusUpdate struct {
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage string
}

// StepRow is one node's terminal outcome within an execution, persisted by
// the job handler's onStepComplete callback.
type StepRow struct {
	Step     int
	NodeID   string
	NodeType string
	Status   string
	Output   map[string]interface{}
	Error    string
}

// AttemptRow is one Execute attempt against a node, including retries.
type AttemptRow struct {
	Attempt    int
	Status     string
	Error      string
	DurationMs int
}

// Port is the narrow persistence interface the job handler and engine use.
// Every method is expected to tolerate a backing store that hasn't
// provisioned the relevant table yet: implementations recognize a
// missing-relation condition and return ErrMissingRelation so the caller can
// log and continue rather than fail the execution over degraded
// observability.
type Port interface {
	// LoadWorkflow loads a workflow definition by ID, used once at the start
	// of a job to build the engine.Workflow the executor runs.
	LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error)

	// UpdateExecutionStatus records a state-machine transition for the
	// execution row (see engine execution states: pending, running,
	// completed, failed, canceled, timeout).
	UpdateExecutionStatus(ctx context.Context, executionID, status string, update StatusUpdate) error

	// InsertStep records one node's terminal step outcome.
	InsertStep(ctx context.Context, executionID string, step StepRow) error

	// InsertStepAttempts records the attempt history for one node's step.
	InsertStepAttempts(ctx context.Context, executionID, nodeID, nodeType string, attempts []AttemptRow) error

	// InsertContextSnapshot records one point in the execution context's
	// versioned snapshot stream.
	InsertContextSnapshot(ctx context.Context, executionID string, snapshot engine.ContextSnapshot) error

	// InsertRetrievalEvent records one retriever attempt, including
	// budget-denied attempts.
	InsertRetrievalEvent(ctx context.Context, executionID string, event retrieval.Event) error
}

// ErrMissingRelation signals that the backing table for an insert/update
// does not exist yet. Callers treat this as a warning, not a failure: the
// job handler logs it and continues the execution (see PersistenceMissingRelation
// in the error taxonomy).
type ErrMissingRelation struct {
	Relation string
	Cause    error
}

func (e *ErrMissingRelation) Error() string {
	return "persistence: relation does not exist: " + e.Relation
}

func (e *ErrMissingRelation) Unwrap() error { return e.Cause }
