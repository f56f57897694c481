package engine

import (
	"context"
	"time"

	"github.com/flowforge/workflowengine/retrieval"
)

// AttemptRecord is one Execute call against a single node, including
// retries.
type AttemptRecord struct {
	Attempt    int
	Status     string // "completed", "failed", "retry"
	Error      string
	DurationMs int
}

// StepRecord is the terminal outcome of one node's run: every attempt it
// took, plus the output the node produced (or nil, if it failed or was
// skipped).
type StepRecord struct {
	NodeID   string
	NodeType string
	Status   string // "completed", "failed", "skipped"
	Output   map[string]interface{}
	Error    string
	Attempts []AttemptRecord
}

// IdentitySet carries the identifiers the retrieval orchestrator and
// knowledge port need to scope a call, threaded down from the job that
// launched this execution.
type IdentitySet struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
}

// Callbacks lets the caller (the Engine, or a test) observe step
// completion, context mutation, and retrieval attempts as they happen,
// without the runner knowing anything about persistence.
type Callbacks struct {
	OnStep            func(StepRecord)
	OnContextSnapshot func(ContextSnapshot)
	OnRetrievalEvent  func(retrieval.Event)
}

func (c Callbacks) step(s StepRecord) {
	if c.OnStep != nil {
		c.OnStep(s)
	}
}

func (c Callbacks) snapshot(s ContextSnapshot) {
	if c.OnContextSnapshot != nil {
		c.OnContextSnapshot(s)
	}
}

func (c Callbacks) retrievalEvent(e retrieval.Event) {
	if c.OnRetrievalEvent != nil {
		c.OnRetrievalEvent(e)
	}
}

// Runner executes a single workflow node to completion: branch-skip
// evaluation, input assembly, optional retrieval injection, the
// retry-governed Execute loop, and context-patch application.
type Runner struct {
	registry   *Registry
	retriever  *retrieval.Orchestrator
	identities IdentitySet
}

// NewRunner builds a Runner bound to a node registry and a retrieval
// orchestrator (nil is valid for workflows that never reference a
// retrieval-capable node).
func NewRunner(registry *Registry, retriever *retrieval.Orchestrator, identities IdentitySet) *Runner {
	return &Runner{registry: registry, retriever: retriever, identities: identities}
}

// ShouldSkip reports whether node should be skipped given its incoming
// edges: a node with at least one incoming edge is skipped when every
// incoming edge either fails MatchCondition against its source's recorded
// output, or its source was itself skipped. A node with no incoming edges
// is never skipped by this rule.
func ShouldSkip(node WorkflowNode, edges []WorkflowEdge, outputs map[string]map[string]interface{}, skipped map[string]bool) bool {
	incoming := make([]WorkflowEdge, 0)
	for _, e := range edges {
		if e.Target == node.ID {
			incoming = append(incoming, e)
		}
	}
	if len(incoming) == 0 {
		return false
	}
	for _, e := range incoming {
		if skipped[e.Source] {
			continue
		}
		parentOutput := outputs[e.Source]
		if MatchCondition(e.Condition, parentOutput) {
			return false
		}
	}
	return true
}

// assembleInputData starts from the trigger payload for every node and, for
// non-root nodes, merges every matched parent's output over it, parent
// outputs applied in edge order so a later edge's keys win on conflict.
func assembleInputData(node WorkflowNode, edges []WorkflowEdge, outputs map[string]map[string]interface{}, skipped map[string]bool, triggerPayload map[string]interface{}) map[string]interface{} {
	incoming := make([]WorkflowEdge, 0)
	for _, e := range edges {
		if e.Target == node.ID {
			incoming = append(incoming, e)
		}
	}
	if len(incoming) == 0 {
		return cloneShallow(triggerPayload)
	}

	data := cloneShallow(triggerPayload)
	for _, e := range incoming {
		if skipped[e.Source] {
			continue
		}
		parentOutput := outputs[e.Source]
		if !MatchCondition(e.Condition, parentOutput) {
			continue
		}
		for k, v := range parentOutput {
			data[k] = v
		}
	}
	return data
}

func cloneShallow(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Run executes node to completion: skip evaluation, retrieval injection,
// the retry loop, and context-patch application, reporting through cb at
// each observable boundary. The returned StepRecord's Output is nil when
// Status is "skipped" or "failed".
func (r *Runner) Run(ctx context.Context, wf Workflow, node WorkflowNode, outputs map[string]map[string]interface{}, skipped map[string]bool, ec *ExecutionContext, triggerPayload map[string]interface{}, cb Callbacks) (StepRecord, error) {
	if ShouldSkip(node, wf.Edges, outputs, skipped) {
		rec := StepRecord{NodeID: node.ID, NodeType: node.Type, Status: "skipped", Error: "No parent branch satisfied edge conditions"}
		cb.step(rec)
		return rec, nil
	}

	def, err := r.registry.Resolve(node.Type)
	if err != nil {
		rec := StepRecord{NodeID: node.ID, NodeType: node.Type, Status: "failed", Error: err.Error()}
		cb.step(rec)
		return rec, err
	}

	now := time.Now()
	ec.SetActiveNode(node.ID, now)

	data := assembleInputData(node, wf.Edges, outputs, skipped, triggerPayload)
	if err := r.injectRetrieval(ctx, node, data, ec, cb); err != nil {
		rec := StepRecord{NodeID: node.ID, NodeType: node.Type, Status: "failed", Error: err.Error()}
		cb.step(rec)
		return rec, err
	}

	policy := ResolveRetryPolicy(node.Config)
	rec, _, err := r.executeWithRetry(ctx, node, def, data, policy, ec, cb)
	if err != nil {
		cb.step(rec)
		return rec, err
	}

	now = time.Now()
	ec.CompleteNode(node.ID, now)
	cb.step(rec)
	return rec, nil
}

// executeWithRetry runs def.Execute, applying the node's resolved
// RetryPolicy to both execution errors and node-requested retries
// ("metadata.retry"), and enforcing the shared control-state loop/retry
// ceilings across attempts.
func (r *Runner) executeWithRetry(ctx context.Context, node WorkflowNode, def NodeDefinition, data map[string]interface{}, policy RetryPolicy, ec *ExecutionContext, cb Callbacks) (StepRecord, map[string]interface{}, error) {
	rec := StepRecord{NodeID: node.ID, NodeType: node.Type}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		in := Input{
			Data: data,
			Metadata: map[string]interface{}{
				"nodeId":      node.ID,
				"nodeType":    node.Type,
				"config":      node.Config,
				"attempt":     attempt,
				"executionId": r.identities.ExecutionID,
				"workflowId":  r.identities.WorkflowID,
				"userId":      r.identities.UserID,
			},
		}

		out, err := def.Execute(ctx, in, ec)
		durationMs := int(time.Since(start).Milliseconds())

		if err != nil {
			rec.Attempts = append(rec.Attempts, AttemptRecord{Attempt: attempt, Status: "failed", Error: err.Error(), DurationMs: durationMs})

			if policy.Enabled && policy.RetryOnError && attempt < policy.MaxAttempts {
				if violation := r.bumpRetryCounter(ec, policy); violation != nil {
					rec.Status = "failed"
					rec.Error = violation.Error()
					return rec, nil, violation
				}
				sleepFor(policy.DelayDuration())
				continue
			}

			rec.Status = "failed"
			rec.Error = err.Error()
			return rec, nil, &NodeExecutionError{NodeID: node.ID, Message: err.Error(), Cause: err}
		}

		if out.Metadata != nil {
			if raw, ok := out.Metadata["contextPatch"].(map[string]interface{}); ok {
				applyRawContextPatch(ec, raw, time.Now())
			}
		}

		retryRequested, _, delayMs := parseRetryDirective(out.Metadata)
		if retryRequested && policy.RetryOnDirective && attempt < policy.MaxAttempts {
			rec.Attempts = append(rec.Attempts, AttemptRecord{Attempt: attempt, Status: "retry", DurationMs: durationMs})
			if violation := r.bumpRetryCounter(ec, policy); violation != nil {
				rec.Status = "failed"
				rec.Error = violation.Error()
				return rec, nil, violation
			}
			d := policy.DelayDuration()
			if delayMs > 0 {
				d = time.Duration(delayMs) * time.Millisecond
			}
			sleepFor(d)
			continue
		}

		rec.Attempts = append(rec.Attempts, AttemptRecord{Attempt: attempt, Status: "completed", DurationMs: durationMs})
		rec.Status = "completed"
		rec.Output = withRetryOutcome(out.Data, rec.Attempts)
		now = time.Now()
		r.recordRetryOutcome(ec, node.ID, rec.Attempts, now)
		return rec, rec.Output, nil
	}
}

// withRetryOutcome attaches the §4.6 step 7 bookkeeping keys to a completed
// step's output: the full attempt history, its count, and a terminal
// outcome summary.
func withRetryOutcome(data map[string]interface{}, attempts []AttemptRecord) map[string]interface{} {
	out := cloneShallow(data)
	out["_attempts"] = attemptsToMaps(attempts)
	out["_attemptCount"] = len(attempts)
	out["_retryOutcome"] = retryOutcomeSummary(attempts)
	return out
}

func attemptsToMaps(attempts []AttemptRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, len(attempts))
	for i, a := range attempts {
		m := map[string]interface{}{
			"attempt":    a.Attempt,
			"status":     a.Status,
			"durationMs": a.DurationMs,
		}
		if a.Error != "" {
			m["error"] = a.Error
		}
		out[i] = m
	}
	return out
}

// retryOutcomeSummary classifies a completed step's attempt history:
// "succeeded_first_attempt" when the node completed on its first try,
// "retry_succeeded_after_n" when one or more retries preceded success.
func retryOutcomeSummary(attempts []AttemptRecord) map[string]interface{} {
	status := "succeeded_first_attempt"
	if len(attempts) > 1 {
		status = "retry_succeeded_after_n"
	}
	return map[string]interface{}{
		"status":   status,
		"attempts": len(attempts),
	}
}

// recordRetryOutcome writes the per-node and last-seen retry outcome into
// memory per §4.6 step 7.
func (r *Runner) recordRetryOutcome(ec *ExecutionContext, nodeID string, attempts []AttemptRecord, now time.Time) {
	outcome := retryOutcomeSummary(attempts)
	ec.ApplyPatch(ContextPatch{Memory: map[string]interface{}{
		"retry.outcome." + nodeID: outcome,
		"retry.lastOutcome":       outcome,
	}}, now)
}

// bumpRetryCounter advances the shared control counters (retryCount always,
// loopCount as well when policy.IncrementLoopOnRetry is set) and raises
// ExecutionControlViolation once a ceiling is crossed.
func (r *Runner) bumpRetryCounter(ec *ExecutionContext, policy RetryPolicy) error {
	now := time.Now()
	ec.mu.Lock()
	control := ec.Control
	ec.mu.Unlock()

	control.RetryCount++
	if policy.IncrementLoopOnRetry {
		control.LoopCount++
		if control.MaxLoops > 0 && control.LoopCount > control.MaxLoops {
			control.Terminate = true
			ec.ApplyPatch(ContextPatch{Control: &control}, now)
			return &ExecutionControlViolation{Reason: "loopCount exceeded maxLoops"}
		}
	}
	if control.MaxRetries > 0 && control.RetryCount > control.MaxRetries {
		control.Terminate = true
		ec.ApplyPatch(ContextPatch{Control: &control}, now)
		return &ExecutionControlViolation{Reason: "retryCount exceeded maxRetries"}
	}

	ec.ApplyPatch(ContextPatch{Control: &control}, now)
	return nil
}

func sleepFor(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func parseRetryDirective(meta map[string]interface{}) (requested bool, reason string, delayMs int) {
	if meta == nil {
		return false, "", 0
	}
	switch v := meta["retry"].(type) {
	case bool:
		return v, "", 0
	case map[string]interface{}:
		if b, ok := v["requested"].(bool); ok {
			requested = b
		}
		if s, ok := v["reason"].(string); ok {
			reason = s
		}
		if n, ok := toInt(v["delayMs"]); ok {
			delayMs = n
		}
		return requested, reason, delayMs
	default:
		if b, ok := meta["shouldRetry"].(bool); ok {
			return b, "", 0
		}
		return false, "", 0
	}
}

// applyRawContextPatch converts a node-supplied "contextPatch" map into a
// ContextPatch and applies it. control/runtime sub-objects are merged
// field-by-field against the live state before being written back, since
// ExecutionContext.ApplyPatch replaces those subtrees wholesale.
func applyRawContextPatch(ec *ExecutionContext, raw map[string]interface{}, now time.Time) {
	patch := ContextPatch{}

	if m, ok := raw["memory"].(map[string]interface{}); ok {
		patch.Memory = m
	}
	if m, ok := raw["knowledge"].(map[string]interface{}); ok {
		patch.Knowledge = m
	}

	if m, ok := raw["control"].(map[string]interface{}); ok {
		ec.mu.Lock()
		control := ec.Control
		ec.mu.Unlock()
		if v, ok := toInt(m["loopCount"]); ok {
			control.LoopCount = v
		}
		if v, ok := toInt(m["retryCount"]); ok {
			control.RetryCount = v
		}
		if v, ok := toInt(m["maxLoops"]); ok {
			control.MaxLoops = v
		}
		if v, ok := toInt(m["maxRetries"]); ok {
			control.MaxRetries = v
		}
		if v, ok := m["terminate"].(bool); ok {
			control.Terminate = v
		}
		patch.Control = &control
	}

	if m, ok := raw["retrieval"].(map[string]interface{}); ok {
		ec.mu.Lock()
		rb := ec.Retrieval
		ec.mu.Unlock()
		if v, ok := toInt(m["maxRequests"]); ok {
			rb.MaxRequests = v
		}
		if v, ok := toInt(m["maxFailures"]); ok {
			rb.MaxFailures = v
		}
		if v, ok := toInt(m["maxDurationMs"]); ok {
			rb.MaxDurationMs = v
		}
		patch.Retrieval = &rb
	}

	if patch.Memory == nil && patch.Knowledge == nil && patch.Control == nil && patch.Retrieval == nil {
		return
	}
	ec.ApplyPatch(patch, now)
}
