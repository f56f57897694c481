package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/retrieval"
)

// MemStore is an in-memory Port implementation: testing and development
// only, data is lost on process exit and nothing here is durable.
type MemStore struct {
	mu sync.RWMutex

	workflows map[string]Workflow

	status       map[string]string
	startedAt    map[string]time.Time
	finishedAt   map[string]time.Time
	errorMessage map[string]string

	steps    map[string][]StepRow
	attempts map[string][]attemptEntry

	snapshots map[string][]engine.ContextSnapshot
	events    map[string][]retrieval.Event
}

type attemptEntry struct {
	NodeID, NodeType string
	Attempts         []AttemptRow
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows:    make(map[string]Workflow),
		status:       make(map[string]string),
		startedAt:    make(map[string]time.Time),
		finishedAt:   make(map[string]time.Time),
		errorMessage: make(map[string]string),
		steps:        make(map[string][]StepRow),
		attempts:     make(map[string][]attemptEntry),
		snapshots:    make(map[string][]engine.ContextSnapshot),
		events:       make(map[string][]retrieval.Event),
	}
}

// Seed registers a workflow definition for later LoadWorkflow calls; tests
// and local tooling use this in place of a real migration/loader.
func (m *MemStore) Seed(wf Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
}

func (m *MemStore) LoadWorkflow(_ context.Context, workflowID string) (Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	return wf, nil
}

func (m *MemStore) UpdateExecutionStatus(_ context.Context, executionID, status string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[executionID] = status
	if update.StartedAt != nil {
		m.startedAt[executionID] = *update.StartedAt
	}
	if update.FinishedAt != nil {
		m.finishedAt[executionID] = *update.FinishedAt
	}
	if update.ErrorMessage != "" {
		m.errorMessage[executionID] = update.ErrorMessage
	}
	return nil
}

func (m *MemStore) InsertStep(_ context.Context, executionID string, step StepRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[executionID] = append(m.steps[executionID], step)
	return nil
}

func (m *MemStore) InsertStepAttempts(_ context.Context, executionID, nodeID, nodeType string, attempts []AttemptRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[executionID] = append(m.attempts[executionID], attemptEntry{NodeID: nodeID, NodeType: nodeType, Attempts: attempts})
	return nil
}

func (m *MemStore) InsertContextSnapshot(_ context.Context, executionID string, snapshot engine.ContextSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[executionID] = append(m.snapshots[executionID], snapshot)
	return nil
}

func (m *MemStore) InsertRetrievalEvent(_ context.Context, executionID string, event retrieval.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[executionID] = append(m.events[executionID], event)
	return nil
}

// Steps returns the steps recorded for an execution, in insertion order —
// used by tests to assert on recorded history.
func (m *MemStore) Steps(executionID string) []StepRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StepRow, len(m.steps[executionID]))
	copy(out, m.steps[executionID])
	return out
}

// Snapshots returns the context snapshot stream recorded for an execution.
func (m *MemStore) Snapshots(executionID string) []engine.ContextSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.ContextSnapshot, len(m.snapshots[executionID]))
	copy(out, m.snapshots[executionID])
	return out
}

// RetrievalEvents returns the retrieval events recorded for an execution.
func (m *MemStore) RetrievalEvents(executionID string) []retrieval.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]retrieval.Event, len(m.events[executionID]))
	copy(out, m.events[executionID])
	return out
}

// Status returns the last-recorded status and error message for an
// execution.
func (m *MemStore) Status(executionID string) (status, errorMessage string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[executionID], m.errorMessage[executionID]
}
