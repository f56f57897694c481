package engine

import (
	"context"
	"time"

	"github.com/flowforge/workflowengine/retrieval"
)

// ExecutionResult is what one Engine.Execute call returns: the terminal
// status, every step taken, and the final context snapshot.
type ExecutionResult struct {
	Status       string // "completed", "failed", "terminated_by_control"
	Steps        []StepRecord
	FinalContext ContextSnapshot
	Error        string
}

// Engine drives one workflow execution: validate the DAG, plan waves, then
// run every node in topological order, sequentially within and across
// waves (wave membership is exposed for observability and future
// parallelism, but never changes step order — see PlanWaves).
type Engine struct {
	registry  *Registry
	runner    *Runner
	emit      func(reason string, detail map[string]interface{})
	callbacks Callbacks
	metrics   *PrometheusMetrics
}

// NewEngine builds an Engine bound to a node registry and a retrieval
// orchestrator (nil disables engine-mediated retrieval entirely).
func NewEngine(registry *Registry, retriever *retrieval.Orchestrator, identities IdentitySet, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		runner:   NewRunner(registry, retriever, identities),
		emit:     func(string, map[string]interface{}) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates wf's DAG and every node's type and config, plans waves,
// and runs every node to completion or failure. It returns no Go error:
// every outcome, including a rejected DAG or node config, is reported
// through ExecutionResult.Status/Error. Snapshots reach the callbacks as
// "init", one "step" per run node, then "final" or "error".
func (e *Engine) Execute(ctx context.Context, wf Workflow, triggerPayload map[string]interface{}, initialControl ControlState, budget RetrievalBudgetState) ExecutionResult {
	now := time.Now()

	outcome := ValidateDAG(wf.Nodes, wf.Edges)
	e.emit("validate", map[string]interface{}{"executionId": e.runner.identities.ExecutionID, "valid": outcome.Valid, "errors": outcome.Errors})
	if !outcome.Valid {
		ec := NewExecutionContext(now)
		snap := ec.Snapshot(0, "validation_failed", "", "")
		return ExecutionResult{
			Status:       "failed",
			FinalContext: snap,
			Error:        joinErrors(outcome.Errors),
		}
	}

	var configErrs []string
	for _, n := range wf.Nodes {
		def, err := e.registry.Resolve(n.Type)
		if err != nil {
			configErrs = append(configErrs, n.ID+": "+err.Error())
		} else if def.Validate != nil {
			if res := def.Validate(n.Config); !res.Valid {
				configErrs = append(configErrs, n.ID+": "+joinErrors(res.Errors))
			}
		}
	}
	if len(configErrs) > 0 {
		return ExecutionResult{Status: "failed", FinalContext: NewExecutionContext(now).Snapshot(0, "validation_failed", "", ""), Error: joinErrors(configErrs)}
	}

	waves := PlanWaves(outcome.ExecutionOrder, wf.Edges)
	e.emit("waves_planned", map[string]interface{}{"executionId": e.runner.identities.ExecutionID, "waves": WaveSummary(waves)})

	ec := NewExecutionContext(now)
	ec.ApplyPatch(ContextPatch{
		Control:   &initialControl,
		Retrieval: &budget,
		Knowledge: map[string]interface{}{"scheduler.waves": WaveSummary(waves)},
	}, now)
	e.callbacks.snapshot(ec.Snapshot(0, "init", "", ""))

	nodeByID := make(map[string]WorkflowNode, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeByID[n.ID] = n
	}

	outputs := make(map[string]map[string]interface{}, len(wf.Nodes))
	skipped := make(map[string]bool, len(wf.Nodes))
	visited := make(map[string]bool, len(wf.Nodes))
	steps := make([]StepRecord, 0, len(wf.Nodes))
	sequence := 1

	for waveIdx, wave := range waves {
		for nodeIdx, nodeID := range wave.Nodes {
			node := nodeByID[nodeID]
			visited[nodeID] = true

			rec, err := e.runner.Run(ctx, wf, node, outputs, skipped, ec, triggerPayload, e.callbacks)
			steps = append(steps, rec)
			e.recordStepMetrics(node, rec)

			switch rec.Status {
			case "skipped":
				skipped[nodeID] = true
			case "completed":
				outputs[nodeID] = rec.Output
			}

			e.callbacks.snapshot(ec.Snapshot(sequence, "step", nodeID, node.Type))
			sequence++

			if err != nil {
				steps, sequence = e.skipRemaining(waves, nodeByID, waveIdx, nodeIdx+1, visited, steps, ec, sequence)

				finalSnap := ec.Snapshot(sequence, "error", nodeID, node.Type)
				e.callbacks.snapshot(finalSnap)
				status := "failed"
				if _, ok := err.(*ExecutionControlViolation); ok {
					status = "terminated_by_control"
				}
				e.emit("execution_error", map[string]interface{}{
					"executionId": e.runner.identities.ExecutionID,
					"nodeId":      nodeID,
					"nodeType":    node.Type,
					"sequence":    sequence,
					"error":       err.Error(),
				})
				return ExecutionResult{
					Status:       status,
					Steps:        steps,
					FinalContext: finalSnap,
					Error:        err.Error(),
				}
			}

			if ec.Terminated() {
				steps, sequence = e.skipRemaining(waves, nodeByID, waveIdx, nodeIdx+1, visited, steps, ec, sequence)

				finalSnap := ec.Snapshot(sequence, "final", nodeID, node.Type)
				e.callbacks.snapshot(finalSnap)
				return ExecutionResult{
					Status:       "terminated_by_control",
					Steps:        steps,
					FinalContext: finalSnap,
					Error:        "execution terminated by control directive",
				}
			}
		}
	}

	finalSnap := ec.Snapshot(sequence, "final", "", "")
	e.callbacks.snapshot(finalSnap)
	e.emit("execution_completed", map[string]interface{}{
		"executionId": e.runner.identities.ExecutionID,
		"sequence":    sequence,
		"steps":       len(steps),
	})
	return ExecutionResult{
		Status:       "completed",
		Steps:        steps,
		FinalContext: finalSnap,
	}
}

// skipRemaining emits a "skipped" StepRecord with reason for every node not
// yet visited, starting at wave waveIdx's fromNodeIdx and continuing through
// every later wave, so that a step-emission/node-count invariant holds even
// when execution halts early (§4.6 step 9, §8). It returns the extended
// steps slice and the sequence counter advanced past each emitted skip.
func (e *Engine) skipRemaining(waves []Wave, nodeByID map[string]WorkflowNode, waveIdx, fromNodeIdx int, visited map[string]bool, steps []StepRecord, ec *ExecutionContext, sequence int) ([]StepRecord, int) {
	const reason = "Skipped due to previous node failure"
	for wi := waveIdx; wi < len(waves); wi++ {
		startIdx := 0
		if wi == waveIdx {
			startIdx = fromNodeIdx
		}
		for _, nodeID := range waves[wi].Nodes[startIdx:] {
			if visited[nodeID] {
				continue
			}
			visited[nodeID] = true
			node := nodeByID[nodeID]
			rec := StepRecord{NodeID: nodeID, NodeType: node.Type, Status: "skipped", Error: reason}
			steps = append(steps, rec)
			e.callbacks.step(rec)
			e.callbacks.snapshot(ec.Snapshot(sequence, "step", nodeID, node.Type))
			sequence++
		}
	}
	return steps, sequence
}

// recordStepMetrics reports one node's attempts to the configured
// PrometheusMetrics, a no-op when none was wired via WithMetrics.
func (e *Engine) recordStepMetrics(node WorkflowNode, rec StepRecord) {
	if e.metrics == nil || rec.Status == "skipped" {
		return
	}
	for i, a := range rec.Attempts {
		status := a.Status
		if status == "" {
			status = rec.Status
		}
		e.metrics.RecordStep(e.runner.identities.ExecutionID, node.Type, status, time.Duration(a.DurationMs)*time.Millisecond)
		if i > 0 {
			e.metrics.IncrementRetries(e.runner.identities.ExecutionID, node.Type)
		}
	}
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}
