package emit

import (
	"testing"
	"time"
)

func TestEvent_Struct(t *testing.T) {
	t.Run("complete event with all fields", func(t *testing.T) {
		meta := map[string]interface{}{
			"duration_ms": 125,
			"retry":       false,
		}

		event := Event{
			ExecutionID: "exec-001",
			Sequence:    3,
			NodeID:      "process-node",
			NodeType:    "transform",
			Msg:         "step",
			Meta:        meta,
		}

		if event.ExecutionID != "exec-001" {
			t.Errorf("expected ExecutionID = 'exec-001', got %q", event.ExecutionID)
		}
		if event.Sequence != 3 {
			t.Errorf("expected Sequence = 3, got %d", event.Sequence)
		}
		if event.NodeID != "process-node" {
			t.Errorf("expected NodeID = 'process-node', got %q", event.NodeID)
		}
		if event.NodeType != "transform" {
			t.Errorf("expected NodeType = 'transform', got %q", event.NodeType)
		}
		if event.Msg != "step" {
			t.Errorf("expected Msg = 'step', got %q", event.Msg)
		}
		if event.Meta["duration_ms"] != 125 {
			t.Errorf("expected Meta['duration_ms'] = 125, got %v", event.Meta["duration_ms"])
		}
	})

	t.Run("minimal event", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-002",
			Msg:         "execution_completed",
		}

		if event.Sequence != 0 {
			t.Errorf("expected Sequence = 0 (zero value), got %d", event.Sequence)
		}
		if event.NodeID != "" {
			t.Errorf("expected NodeID = \"\" (zero value), got %q", event.NodeID)
		}
		if event.Meta != nil {
			t.Error("expected Meta = nil (zero value)")
		}
	})

	t.Run("event with metadata", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-003",
			Sequence:    1,
			NodeID:      "start",
			Msg:         "step",
			Meta: map[string]interface{}{
				"timestamp": time.Now().Unix(),
				"userId":    "user-123",
				"tags":      []string{"production", "high-priority"},
			},
		}

		if event.Meta["userId"] != "user-123" {
			t.Errorf("expected userId = 'user-123', got %v", event.Meta["userId"])
		}

		tags, ok := event.Meta["tags"].([]string)
		if !ok {
			t.Fatal("expected tags to be []string")
		}
		if len(tags) != 2 {
			t.Errorf("expected 2 tags, got %d", len(tags))
		}
	})

	t.Run("zero value event", func(t *testing.T) {
		var event Event

		if event.ExecutionID != "" {
			t.Errorf("expected zero value ExecutionID, got %q", event.ExecutionID)
		}
		if event.Sequence != 0 {
			t.Errorf("expected zero value Sequence, got %d", event.Sequence)
		}
		if event.NodeID != "" {
			t.Errorf("expected zero value NodeID, got %q", event.NodeID)
		}
		if event.Msg != "" {
			t.Errorf("expected zero value Msg, got %q", event.Msg)
		}
		if event.Meta != nil {
			t.Error("expected zero value Meta to be nil")
		}
	})
}

func TestEvent_UseCases(t *testing.T) {
	t.Run("node step event", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-001",
			Sequence:    1,
			NodeID:      "llm-call",
			NodeType:    "llm",
			Msg:         "step",
		}

		if event.NodeID != "llm-call" {
			t.Errorf("expected NodeID = 'llm-call', got %q", event.NodeID)
		}
	})

	t.Run("node step with retrieval metadata", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-001",
			Sequence:    1,
			NodeID:      "llm-call",
			NodeType:    "llm",
			Msg:         "step",
			Meta: map[string]interface{}{
				"tokens_in":  150,
				"latency_ms": 320,
			},
		}

		if event.Meta["tokens_in"] != 150 {
			t.Errorf("expected tokens_in = 150, got %v", event.Meta["tokens_in"])
		}
	})

	t.Run("execution error event", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-001",
			Sequence:    2,
			NodeID:      "validator",
			NodeType:    "json-validator",
			Msg:         "execution_error",
			Meta: map[string]interface{}{
				"error": "invalid input",
			},
		}

		if event.Meta["error"] != "invalid input" {
			t.Errorf("expected error metadata, got %v", event.Meta["error"])
		}
	})

	t.Run("execution-level event has no node", func(t *testing.T) {
		event := Event{
			ExecutionID: "exec-001",
			Msg:         "execution_completed",
			Meta: map[string]interface{}{
				"steps": 5,
			},
		}

		if event.NodeID != "" {
			t.Errorf("expected execution-level event to carry no NodeID, got %q", event.NodeID)
		}
		if event.Meta["steps"] != 5 {
			t.Errorf("expected steps = 5, got %v", event.Meta["steps"])
		}
	})
}
