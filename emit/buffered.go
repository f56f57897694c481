package emit

import (
	"context"
	"sync"
)

// BufferedEmitter implements Emitter by storing events in memory, keyed by
// executionID, with query support. It's meant for tests and local
// inspection, not long-running workers — nothing ever evicts old executions.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // executionID -> events
}

// HistoryFilter narrows GetHistoryWithFilter's result. All set fields are
// combined with AND logic.
type HistoryFilter struct {
	NodeID      string // empty = no filter
	Msg         string // empty = no filter
	MinSequence *int   // nil = no lower bound
	MaxSequence *int   // nil = no upper bound
}

// NewBufferedEmitter creates an empty BufferedEmitter. Safe for concurrent
// use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends event under its ExecutionID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// EmitBatch appends every event in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
	}
	return nil
}

// Flush is a no-op: events are already resident in memory.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// GetHistory returns every event recorded for executionID, in emission
// order. Returns an empty (non-nil) slice if none exist.
func (b *BufferedEmitter) GetHistory(executionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[executionID]
	if events == nil {
		return []Event{}
	}
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter returns executionID's events matching filter, in
// emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[executionID]
	if events == nil {
		return []Event{}
	}
	if filter.NodeID == "" && filter.Msg == "" && filter.MinSequence == nil && filter.MaxSequence == nil {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	var result []Event
	for _, event := range events {
		if !b.matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}
	if result == nil {
		return []Event{}
	}
	return result
}

func (b *BufferedEmitter) matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinSequence != nil && event.Sequence < *filter.MinSequence {
		return false
	}
	if filter.MaxSequence != nil && event.Sequence > *filter.MaxSequence {
		return false
	}
	return true
}

// Clear discards the events recorded for executionID, or every execution's
// events if executionID is empty.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if executionID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, executionID)
	}
}
