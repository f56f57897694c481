// Package emit provides event emission and observability for workflow execution.
package emit

import (
	"testing"
	"time"
)

// TestBufferedEmitter_StoresEvents verifies BufferedEmitter stores emitted events.
func TestBufferedEmitter_StoresEvents(t *testing.T) {
	t.Run("stores single event", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		event := Event{
			ExecutionID: "exec-001",
			Sequence:    1,
			NodeID:      "node1",
			Msg:         "step",
		}

		emitter.Emit(event)

		history := emitter.GetHistory("exec-001")
		if len(history) != 1 {
			t.Fatalf("expected 1 event, got %d", len(history))
		}
		if history[0].NodeID != "node1" {
			t.Errorf("expected NodeID = 'node1', got %q", history[0].NodeID)
		}
	})

	t.Run("stores multiple events", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Sequence: 0, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 0, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 1, NodeID: "node2", Msg: "step"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		history := emitter.GetHistory("exec-001")
		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
	})

	t.Run("isolates events by executionID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{ExecutionID: "exec-001", Msg: "event1"})
		emitter.Emit(Event{ExecutionID: "exec-002", Msg: "event2"})
		emitter.Emit(Event{ExecutionID: "exec-001", Msg: "event3"})

		history1 := emitter.GetHistory("exec-001")
		history2 := emitter.GetHistory("exec-002")

		if len(history1) != 2 {
			t.Errorf("expected 2 events for exec-001, got %d", len(history1))
		}
		if len(history2) != 1 {
			t.Errorf("expected 1 event for exec-002, got %d", len(history2))
		}
	})

	t.Run("returns empty slice for unknown executionID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		history := emitter.GetHistory("unknown-exec")
		if history == nil {
			t.Error("expected empty slice, got nil")
		}
		if len(history) != 0 {
			t.Errorf("expected 0 events, got %d", len(history))
		}
	})
}

// TestBufferedEmitter_GetHistoryWithFilter verifies event filtering.
func TestBufferedEmitter_GetHistoryWithFilter(t *testing.T) {
	t.Run("filters by nodeID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", NodeID: "node1", Msg: "event1"},
			{ExecutionID: "exec-001", NodeID: "node2", Msg: "event2"},
			{ExecutionID: "exec-001", NodeID: "node1", Msg: "event3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{NodeID: "node1"}
		history := emitter.GetHistoryWithFilter("exec-001", filter)

		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		for _, event := range history {
			if event.NodeID != "node1" {
				t.Errorf("expected NodeID = 'node1', got %q", event.NodeID)
			}
		}
	})

	t.Run("filters by message", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Msg: "step"},
			{ExecutionID: "exec-001", Msg: "execution_completed"},
			{ExecutionID: "exec-001", Msg: "step"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{Msg: "step"}
		history := emitter.GetHistoryWithFilter("exec-001", filter)

		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		for _, event := range history {
			if event.Msg != "step" {
				t.Errorf("expected Msg = 'step', got %q", event.Msg)
			}
		}
	})

	t.Run("filters by sequence range", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Sequence: 0, Msg: "event0"},
			{ExecutionID: "exec-001", Sequence: 1, Msg: "event1"},
			{ExecutionID: "exec-001", Sequence: 2, Msg: "event2"},
			{ExecutionID: "exec-001", Sequence: 3, Msg: "event3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		minSeq := 1
		maxSeq := 2
		filter := HistoryFilter{MinSequence: &minSeq, MaxSequence: &maxSeq}
		history := emitter.GetHistoryWithFilter("exec-001", filter)

		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		if history[0].Sequence != 1 || history[1].Sequence != 2 {
			t.Error("expected sequences 1 and 2")
		}
	})

	t.Run("combines multiple filters", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Sequence: 1, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 1, NodeID: "node2", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 2, NodeID: "node1", Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 1, NodeID: "node1", Msg: "execution_completed"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		seq := 1
		filter := HistoryFilter{
			NodeID:      "node1",
			Msg:         "step",
			MinSequence: &seq,
			MaxSequence: &seq,
		}
		history := emitter.GetHistoryWithFilter("exec-001", filter)

		if len(history) != 1 {
			t.Fatalf("expected 1 event, got %d", len(history))
		}
		if history[0].Sequence != 1 || history[0].NodeID != "node1" || history[0].Msg != "step" {
			t.Error("expected event with sequence=1, nodeID=node1, msg=step")
		}
	})

	t.Run("empty filter returns all events", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Msg: "event1"},
			{ExecutionID: "exec-001", Msg: "event2"},
			{ExecutionID: "exec-001", Msg: "event3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{}
		history := emitter.GetHistoryWithFilter("exec-001", filter)

		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
	})
}

// TestBufferedEmitter_Clear verifies clearing stored events.
func TestBufferedEmitter_Clear(t *testing.T) {
	t.Run("clears all events for executionID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{ExecutionID: "exec-001", Msg: "event1"})
		emitter.Emit(Event{ExecutionID: "exec-002", Msg: "event2"})

		emitter.Clear("exec-001")

		history1 := emitter.GetHistory("exec-001")
		history2 := emitter.GetHistory("exec-002")

		if len(history1) != 0 {
			t.Errorf("expected 0 events for exec-001, got %d", len(history1))
		}
		if len(history2) != 1 {
			t.Errorf("expected 1 event for exec-002, got %d", len(history2))
		}
	})

	t.Run("clears all events when executionID is empty", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{ExecutionID: "exec-001", Msg: "event1"})
		emitter.Emit(Event{ExecutionID: "exec-002", Msg: "event2"})

		emitter.Clear("")

		history1 := emitter.GetHistory("exec-001")
		history2 := emitter.GetHistory("exec-002")

		if len(history1) != 0 || len(history2) != 0 {
			t.Error("expected all events to be cleared")
		}
	})
}

// TestBufferedEmitter_ThreadSafety verifies concurrent access safety.
func TestBufferedEmitter_ThreadSafety(t *testing.T) {
	t.Run("concurrent emit and read", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func(_ int) {
				for j := 0; j < 100; j++ {
					emitter.Emit(Event{
						ExecutionID: "exec-001",
						Sequence:    j,
						Msg:         "concurrent_event",
					})
				}
				done <- true
			}(i)
		}

		readDone := make(chan bool)
		go func() {
			for i := 0; i < 100; i++ {
				emitter.GetHistory("exec-001")
				time.Sleep(1 * time.Millisecond)
			}
			readDone <- true
		}()

		for i := 0; i < 10; i++ {
			<-done
		}
		<-readDone

		history := emitter.GetHistory("exec-001")
		if len(history) != 1000 {
			t.Errorf("expected 1000 events, got %d", len(history))
		}
	})
}

// TestBufferedEmitter_EmitBatch verifies batch emission.
func TestBufferedEmitter_EmitBatch(t *testing.T) {
	t.Run("appends every event in order", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{ExecutionID: "exec-001", Sequence: 0, Msg: "step"},
			{ExecutionID: "exec-001", Sequence: 1, Msg: "step"},
			{ExecutionID: "exec-002", Sequence: 0, Msg: "step"},
		}

		if err := emitter.EmitBatch(nil, events); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(emitter.GetHistory("exec-001")) != 2 {
			t.Errorf("expected 2 events for exec-001, got %d", len(emitter.GetHistory("exec-001")))
		}
		if len(emitter.GetHistory("exec-002")) != 1 {
			t.Errorf("expected 1 event for exec-002, got %d", len(emitter.GetHistory("exec-002")))
		}
	})

	t.Run("flush is a no-op", func(t *testing.T) {
		emitter := NewBufferedEmitter()
		if err := emitter.Flush(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// TestBufferedEmitter_InterfaceContract verifies BufferedEmitter implements Emitter.
func TestBufferedEmitter_InterfaceContract(_ *testing.T) {
	var _ Emitter = NewBufferedEmitter()
}
