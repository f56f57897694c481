// Package emit provides event emission and observability for workflow execution.
package emit

import (
	"testing"
)

// TestNullEmitter_NoOp verifies NullEmitter discards all events without errors.
func TestNullEmitter_NoOp(t *testing.T) {
	t.Run("emits events without error", func(t *testing.T) {
		emitter := NewNullEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Sequence: 0, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 0, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 1, NodeID: "node2", Msg: "execution_error", Meta: map[string]interface{}{"error": "test"}},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		t.Log("NullEmitter successfully discarded all events")
	})

	t.Run("can emit with nil meta", func(t *testing.T) {
		emitter := NewNullEmitter()

		event := Event{
			ExecutionID: "exec-001",
			Sequence:    0,
			NodeID:      "node1",
			Msg:         "step",
			Meta:        nil,
		}

		emitter.Emit(event)

		t.Log("NullEmitter handled nil meta without error")
	})
}

// TestNullEmitter_EmitBatch verifies batch emission is a no-op.
func TestNullEmitter_EmitBatch(t *testing.T) {
	emitter := NewNullEmitter()

	events := []Event{
		{ExecutionID: "exec-001", Sequence: 0, Msg: "step"},
		{ExecutionID: "exec-001", Sequence: 1, Msg: "step"},
	}

	if err := emitter.EmitBatch(nil, events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestNullEmitter_Flush verifies flush is a no-op.
func TestNullEmitter_Flush(t *testing.T) {
	emitter := NewNullEmitter()
	if err := emitter.Flush(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestNullEmitter_InterfaceContract verifies NullEmitter implements Emitter interface.
func TestNullEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewNullEmitter()
}
