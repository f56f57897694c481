// Package job implements the Job Handler contract: binding one queued
// execution to the persistence and queue ports, wiring engine callbacks to
// writes, and managing the execution's status-transition lifecycle.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/knowledge"
	"github.com/flowforge/workflowengine/llm"
	"github.com/flowforge/workflowengine/queue"
	"github.com/flowforge/workflowengine/retrieval"
	"github.com/flowforge/workflowengine/store"
)

// Config bounds per-execution defaults not carried on the job payload
// itself: initial control limits and the retrieval budget ceilings read
// from the environment at worker startup.
type Config struct {
	MaxRetries           int
	MaxLoops             int
	RetrievalMaxRequests int
	RetrievalMaxFailures int
	RetrievalMaxDuration time.Duration
}

// DefaultConfig matches the engine's zero-value behavior (no limit means
// "0", which the engine's control-limit check treats as unlimited) except
// where a ceiling is clearly needed to avoid a runaway workflow.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           5,
		MaxLoops:             50,
		RetrievalMaxRequests: 100,
		RetrievalMaxFailures: 20,
		RetrievalMaxDuration: 2 * time.Minute,
	}
}

// Handler runs one job end to end: load the workflow, drive the engine,
// and persist every step/attempt/snapshot/retrieval-event the engine
// callbacks report, finishing with the terminal execution status.
type Handler struct {
	store     store.Port
	registry  *engine.Registry
	knowl     knowledge.Port
	router    *llm.Router
	config    Config
	log       *logrus.Logger
	traceFunc func(reason string, detail map[string]interface{})
	metrics   *engine.PrometheusMetrics
}

// New builds a Handler. registry should already have every built-in node
// type registered (see nodes.Register); knowl and router may be nil, in
// which case knowledge- and llm-typed nodes fail their own Execute calls
// with a descriptive error rather than the handler refusing the job.
func New(st store.Port, registry *engine.Registry, knowl knowledge.Port, router *llm.Router, config Config, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{store: st, registry: registry, knowl: knowl, router: router, config: config, log: log}
}

// WithTraceFunc wires an engine.WithTraceFunc-style hook into every
// execution this Handler runs afterward — e.g. an emit.Emitter adapter for
// workflow-level observability, distinct from the per-step persistence
// callbacks. Returns h for chaining at construction time.
func (h *Handler) WithTraceFunc(f func(reason string, detail map[string]interface{})) *Handler {
	h.traceFunc = f
	return h
}

// WithMetrics wires Prometheus step/retry metrics into every execution this
// Handler runs afterward.
func (h *Handler) WithMetrics(m *engine.PrometheusMetrics) *Handler {
	h.metrics = m
	return h
}

// Run executes job per the spec's Job Handler contract: status transitions,
// workflow load, engine execution, callback-driven persistence, and a final
// status write. Any error returned is the terminal failure the caller
// (normally the worker loop) should report to the queue so it can apply its
// own retry policy — the execution's own status row has already recorded
// "failed" by the time Run returns a non-nil error.
func (h *Handler) Run(ctx context.Context, j queue.Job) error {
	logger := h.log.WithFields(logrus.Fields{
		"executionId": j.ExecutionID,
		"workflowId":  j.WorkflowID,
		"userId":      j.UserID,
	})

	startedAt := time.Now()
	if err := h.updateStatus(ctx, j.ExecutionID, "running", store.StatusUpdate{StartedAt: &startedAt}, logger); err != nil {
		logger.WithError(err).Warn("failed to record running status")
	}

	wf, err := h.store.LoadWorkflow(ctx, j.WorkflowID)
	if err != nil {
		finishedAt := time.Now()
		msg := fmt.Sprintf("Workflow %s not found", j.WorkflowID)
		if !errors.Is(err, store.ErrNotFound) {
			msg = err.Error()
		}
		_ = h.updateStatus(ctx, j.ExecutionID, "failed", store.StatusUpdate{FinishedAt: &finishedAt, ErrorMessage: msg}, logger)
		return fmt.Errorf("job: %s", msg)
	}

	identities := engine.IdentitySet{ExecutionID: j.ExecutionID, WorkflowID: j.WorkflowID, UserID: j.UserID}

	var retriever *retrieval.Orchestrator
	if h.knowl != nil {
		retriever = retrieval.NewOrchestrator(h.knowl)
	}

	sequence := 0
	callbacks := engine.Callbacks{
		OnStep: func(step engine.StepRecord) {
			h.onStepComplete(ctx, j.ExecutionID, step, logger)
		},
		OnContextSnapshot: func(snap engine.ContextSnapshot) {
			sequence++
			h.onContextUpdate(ctx, j.ExecutionID, snap, logger)
		},
		OnRetrievalEvent: func(ev retrieval.Event) {
			h.onRetrievalEvent(ctx, j.ExecutionID, ev, logger)
		},
	}

	opts := []engine.Option{engine.WithCallbacks(callbacks)}
	if h.traceFunc != nil {
		opts = append(opts, engine.WithTraceFunc(h.traceFunc))
	}
	if h.metrics != nil {
		opts = append(opts, engine.WithMetrics(h.metrics))
	}
	eng := engine.NewEngine(h.registry, retriever, identities, opts...)

	engineWorkflow := engine.Workflow{ID: wf.ID, Nodes: wf.Nodes, Edges: wf.Edges}
	initialControl := engine.ControlState{MaxRetries: h.config.MaxRetries, MaxLoops: h.config.MaxLoops}
	budget := engine.RetrievalBudgetState{
		MaxRequests:   h.config.RetrievalMaxRequests,
		MaxFailures:   h.config.RetrievalMaxFailures,
		MaxDurationMs: int(h.config.RetrievalMaxDuration / time.Millisecond),
	}

	result := eng.Execute(ctx, engineWorkflow, j.TriggerPayload, initialControl, budget)

	finishedAt := time.Now()
	status := engineStatusToExecutionStatus(result.Status)
	if err := h.updateStatus(ctx, j.ExecutionID, status, store.StatusUpdate{FinishedAt: &finishedAt, ErrorMessage: result.Error}, logger); err != nil {
		logger.WithError(err).Warn("failed to record final status")
	}

	if status == "failed" {
		return fmt.Errorf("job: execution %s failed: %s", j.ExecutionID, result.Error)
	}
	return nil
}

// engineStatusToExecutionStatus maps the engine's result status vocabulary
// onto the execution state machine's terminal states (§4.10): a control
// termination is a deliberate, successful stop, not a failure.
func engineStatusToExecutionStatus(engineStatus string) string {
	switch engineStatus {
	case "completed", "terminated_by_control":
		return "completed"
	default:
		return "failed"
	}
}

func (h *Handler) updateStatus(ctx context.Context, executionID, status string, update store.StatusUpdate, logger *logrus.Entry) error {
	err := h.store.UpdateExecutionStatus(ctx, executionID, status, update)
	return h.swallowMissingRelation(err, "executions", logger)
}

// onStepComplete writes the step row, then writes one row per recorded
// attempt alongside it. The runner attaches the same attempt history to the
// step's own output as "_attempts"/"_attemptCount"/"_retryOutcome" per §4.6
// step 7; this persists it as first-class attempt rows instead.
func (h *Handler) onStepComplete(ctx context.Context, executionID string, step engine.StepRecord, logger *logrus.Entry) {
	row := store.StepRow{
		NodeID:   step.NodeID,
		NodeType: step.NodeType,
		Status:   step.Status,
		Output:   step.Output,
		Error:    step.Error,
	}
	if err := h.store.InsertStep(ctx, executionID, row); err != nil {
		h.swallowMissingRelation(err, "execution_steps", logger)
	}

	if len(step.Attempts) == 0 {
		return
	}
	attempts := make([]store.AttemptRow, len(step.Attempts))
	for i, a := range step.Attempts {
		attempts[i] = store.AttemptRow{Attempt: a.Attempt, Status: a.Status, Error: a.Error, DurationMs: a.DurationMs}
	}
	if err := h.store.InsertStepAttempts(ctx, executionID, step.NodeID, step.NodeType, attempts); err != nil {
		h.swallowMissingRelation(err, "step_attempts", logger)
	}
}

func (h *Handler) onContextUpdate(ctx context.Context, executionID string, snap engine.ContextSnapshot, logger *logrus.Entry) {
	if err := h.store.InsertContextSnapshot(ctx, executionID, snap); err != nil {
		h.swallowMissingRelation(err, "context_snapshots", logger)
	}
}

func (h *Handler) onRetrievalEvent(ctx context.Context, executionID string, ev retrieval.Event, logger *logrus.Entry) {
	if err := h.store.InsertRetrievalEvent(ctx, executionID, ev); err != nil {
		h.swallowMissingRelation(err, "retrieval_events", logger)
	}
}

// swallowMissingRelation logs and discards a missing-table condition
// (persistence degradation, per §6/§7) but propagates any other error.
func (h *Handler) swallowMissingRelation(err error, relation string, logger *logrus.Entry) error {
	if err == nil {
		return nil
	}
	var missing *store.ErrMissingRelation
	if errors.As(err, &missing) {
		logger.WithField("relation", relation).Warn("persistence: relation does not exist, continuing without it")
		return nil
	}
	logger.WithError(err).WithField("relation", relation).Error("persistence write failed")
	return err
}
