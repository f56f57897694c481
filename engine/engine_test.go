package engine

import (
	"context"
	"testing"
)

func logNodeDef() NodeDefinition {
	return NodeDefinition{
		Type:     "log",
		Validate: func(NodeConfig) ValidationResult { return ValidationResult{Valid: true} },
		Execute: func(_ context.Context, in Input, _ *ExecutionContext) (Output, error) {
			out := make(map[string]interface{}, len(in.Data)+1)
			for k, v := range in.Data {
				out[k] = v
			}
			out["_seen"] = in.Metadata["nodeId"]
			return Output{Data: out}, nil
		},
	}
}

func registryWithLogNode(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(logNodeDef()); err != nil {
		t.Fatalf("register log node: %v", err)
	}
	return reg
}

func TestEngineExecuteLinearWorkflowSucceeds(t *testing.T) {
	reg := registryWithLogNode(t)
	wf := Workflow{
		Nodes: []WorkflowNode{{ID: "a", Type: "log"}, {ID: "b", Type: "log"}, {ID: "c", Type: "log"}},
		Edges: []WorkflowEdge{edge("a", "b"), edge("b", "c")},
	}

	eng := NewEngine(reg, nil, IdentitySet{ExecutionID: "exec-1"})
	result := eng.Execute(context.Background(), wf, map[string]interface{}{"trigger": true}, ControlState{}, RetrievalBudgetState{})

	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(result.Steps))
	}
	for _, s := range result.Steps {
		if s.Status != "completed" {
			t.Fatalf("expected every step completed, got %s: %s", s.NodeID, s.Status)
		}
	}
}

func TestEngineExecuteRejectsCycleWithoutRunningAnyStep(t *testing.T) {
	reg := registryWithLogNode(t)
	wf := Workflow{
		Nodes: []WorkflowNode{{ID: "a", Type: "log"}, {ID: "b", Type: "log"}},
		Edges: []WorkflowEdge{edge("a", "b"), edge("b", "a")},
	}

	eng := NewEngine(reg, nil, IdentitySet{ExecutionID: "exec-2"})
	result := eng.Execute(context.Background(), wf, nil, ControlState{}, RetrievalBudgetState{})

	if result.Status != "failed" {
		t.Fatalf("expected failed status for a cyclic workflow, got %s", result.Status)
	}
	if len(result.Steps) != 0 {
		t.Fatalf("expected no steps to run for a rejected DAG, got %d", len(result.Steps))
	}
}

func conditionNodeDef(route string) NodeDefinition {
	return NodeDefinition{
		Type:     "condition",
		Validate: func(NodeConfig) ValidationResult { return ValidationResult{Valid: true} },
		Execute: func(context.Context, Input, *ExecutionContext) (Output, error) {
			return Output{Data: map[string]interface{}{"_route": route}}, nil
		},
	}
}

func TestEngineExecuteSkipsUnmatchedBranch(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(conditionNodeDef("left")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(logNodeDef()); err != nil {
		t.Fatal(err)
	}

	wf := Workflow{
		Nodes: []WorkflowNode{
			{ID: "branch", Type: "condition"},
			{ID: "leftNode", Type: "log"},
			{ID: "rightNode", Type: "log"},
		},
		Edges: []WorkflowEdge{
			{Source: "branch", Target: "leftNode", Condition: "left"},
			{Source: "branch", Target: "rightNode", Condition: "right"},
		},
	}

	eng := NewEngine(reg, nil, IdentitySet{ExecutionID: "exec-3"})
	result := eng.Execute(context.Background(), wf, nil, ControlState{}, RetrievalBudgetState{})

	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}

	statuses := map[string]string{}
	for _, s := range result.Steps {
		statuses[s.NodeID] = s.Status
	}
	if statuses["leftNode"] != "completed" {
		t.Fatalf("expected leftNode to run, got %s", statuses["leftNode"])
	}
	if statuses["rightNode"] != "skipped" {
		t.Fatalf("expected rightNode to be skipped, got %s", statuses["rightNode"])
	}
}

func TestEngineExecuteRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	reg := NewRegistry()
	err := reg.Register(NodeDefinition{
		Type:     "flaky",
		Validate: func(NodeConfig) ValidationResult { return ValidationResult{Valid: true} },
		Execute: func(context.Context, Input, *ExecutionContext) (Output, error) {
			attempts++
			if attempts < 2 {
				return Output{}, errUnstable
			}
			return Output{Data: map[string]interface{}{"ok": true}}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	wf := Workflow{
		Nodes: []WorkflowNode{{
			ID: "flaky-node", Type: "flaky",
			Config: NodeConfig{"retryPolicy": map[string]interface{}{"enabled": true, "maxAttempts": 3, "delayMs": 0}},
		}},
	}

	eng := NewEngine(reg, nil, IdentitySet{ExecutionID: "exec-4"})
	result := eng.Execute(context.Background(), wf, nil, ControlState{MaxRetries: 5}, RetrievalBudgetState{})

	if result.Status != "completed" {
		t.Fatalf("expected completed after retry, got %s (%s)", result.Status, result.Error)
	}
	if len(result.Steps) != 1 || len(result.Steps[0].Attempts) != 2 {
		t.Fatalf("expected exactly 2 attempts recorded, got %+v", result.Steps)
	}
}

func TestEngineExecuteTerminatesOnControlCeiling(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(NodeDefinition{
		Type:     "alwaysFails",
		Validate: func(NodeConfig) ValidationResult { return ValidationResult{Valid: true} },
		Execute: func(context.Context, Input, *ExecutionContext) (Output, error) {
			return Output{}, errUnstable
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	wf := Workflow{
		Nodes: []WorkflowNode{{
			ID: "doomed", Type: "alwaysFails",
			Config: NodeConfig{"retryPolicy": map[string]interface{}{"enabled": true, "maxAttempts": 10, "delayMs": 0}},
		}},
	}

	eng := NewEngine(reg, nil, IdentitySet{ExecutionID: "exec-5"})
	result := eng.Execute(context.Background(), wf, nil, ControlState{MaxRetries: 2}, RetrievalBudgetState{})

	if result.Status != "terminated_by_control" {
		t.Fatalf("expected terminated_by_control once retryCount exceeds maxRetries, got %s", result.Status)
	}
}

type unstableErr struct{}

func (unstableErr) Error() string { return "unstable" }

var errUnstable = unstableErr{}
