package engine

import (
	"sync"
	"time"
)

// ControlState tracks loop/retry counters and the termination flag shared
// by all nodes in one execution.
type ControlState struct {
	LoopCount  int  `json:"loopCount"`
	RetryCount int  `json:"retryCount"`
	MaxLoops   int  `json:"maxLoops"`
	MaxRetries int  `json:"maxRetries"`
	Terminate  bool `json:"terminate"`
}

// RetrievalBudgetState is the aggregate, per-execution retrieval budget:
// running counters plus the caps they're checked against.
type RetrievalBudgetState struct {
	TotalRequests   int `json:"totalRequests"`
	TotalSuccesses  int `json:"totalSuccesses"`
	TotalEmpties    int `json:"totalEmpties"`
	TotalFailures   int `json:"totalFailures"`
	TotalDurationMs int `json:"totalDurationMs"`

	MaxRequests   int `json:"maxRequests"`
	MaxFailures   int `json:"maxFailures"`
	MaxDurationMs int `json:"maxDurationMs"`
}

// RuntimeState records bookkeeping about the currently/most-recently active
// node, used for observability and resumption bookkeeping.
type RuntimeState struct {
	StartedAt         time.Time `json:"startedAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	ActiveNodeID      string    `json:"activeNodeId"`
	LastCompletedNode string    `json:"lastCompletedNodeId"`
}

// ContextPatch is a partial update applied to an ExecutionContext. Each
// non-nil subtree is shallow-merged into the corresponding live subtree.
type ContextPatch struct {
	Memory    map[string]interface{}
	Knowledge map[string]interface{}
	Control   *ControlState
	Retrieval *RetrievalBudgetState
	Runtime   *RuntimeState
}

// ExecutionContext is the versioned, patchable state shared by every node
// within one execution. It is owned by the Engine instance; nodes only ever
// see it through the read/patch surface below.
type ExecutionContext struct {
	mu sync.Mutex

	Memory    map[string]interface{}
	Knowledge map[string]interface{}
	Control   ControlState
	Retrieval RetrievalBudgetState
	Runtime   RuntimeState

	Version   int
	UpdatedAt time.Time
}

// NewExecutionContext builds a fresh context with empty subtrees and
// version 0, stamping Runtime.StartedAt/UpdatedAt to now.
func NewExecutionContext(now time.Time) *ExecutionContext {
	return &ExecutionContext{
		Memory:    map[string]interface{}{},
		Knowledge: map[string]interface{}{},
		Runtime: RuntimeState{
			StartedAt: now,
			UpdatedAt: now,
		},
		UpdatedAt: now,
	}
}

// ApplyPatch shallow-merges each non-nil subtree of patch into the live
// state, bumps Version, and stamps UpdatedAt. Applying an empty patch still
// increments Version — applyPatch is never a no-op.
func (ec *ExecutionContext) ApplyPatch(patch ContextPatch, now time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	for k, v := range patch.Memory {
		ec.Memory[k] = v
	}
	for k, v := range patch.Knowledge {
		ec.Knowledge[k] = v
	}
	if patch.Control != nil {
		ec.Control = *patch.Control
	}
	if patch.Retrieval != nil {
		ec.Retrieval = *patch.Retrieval
	}
	if patch.Runtime != nil {
		ec.Runtime = *patch.Runtime
	}

	ec.Version++
	ec.UpdatedAt = now
	ec.Runtime.UpdatedAt = now
}

// GetMemory reads a single memory key under lock.
func (ec *ExecutionContext) GetMemory(key string) (interface{}, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	v, ok := ec.Memory[key]
	return v, ok
}

// SetMemory is sugar over ApplyPatch({memory: {key: value}}).
func (ec *ExecutionContext) SetMemory(key string, value interface{}, now time.Time) {
	ec.ApplyPatch(ContextPatch{Memory: map[string]interface{}{key: value}}, now)
}

// SetActiveNode updates runtime.activeNodeId without disturbing any other
// subtree, bumping Version like any other patch.
func (ec *ExecutionContext) SetActiveNode(nodeID string, now time.Time) {
	ec.mu.Lock()
	rt := ec.Runtime
	ec.mu.Unlock()
	rt.ActiveNodeID = nodeID
	ec.ApplyPatch(ContextPatch{Runtime: &rt}, now)
}

// CompleteNode clears activeNodeId and records lastCompletedNodeId.
func (ec *ExecutionContext) CompleteNode(nodeID string, now time.Time) {
	ec.mu.Lock()
	rt := ec.Runtime
	ec.mu.Unlock()
	rt.ActiveNodeID = ""
	rt.LastCompletedNode = nodeID
	ec.ApplyPatch(ContextPatch{Runtime: &rt}, now)
}

// ControlSnapshot reads a copy of the live control state under lock, for
// node implementations (execution-control) that need the current
// loop/retry counters to compute a new value before patching.
func (ec *ExecutionContext) ControlSnapshot() ControlState {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.Control
}

// Terminated reports whether control.terminate has been set.
func (ec *ExecutionContext) Terminated() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.Control.Terminate
}

// Snapshot deep-copies every subtree into a ContextSnapshot suitable for
// emission to the persistence port. The returned value shares no
// substructure with the live state: mutating the snapshot (or later
// mutating the live context) never affects the other.
type ContextSnapshot struct {
	Sequence  int
	Reason    string
	NodeID    string
	NodeType  string
	Memory    map[string]interface{}
	Knowledge map[string]interface{}
	Control   ControlState
	Retrieval RetrievalBudgetState
	Runtime   RuntimeState
	Version   int
	UpdatedAt time.Time
}

func (ec *ExecutionContext) Snapshot(sequence int, reason, nodeID, nodeType string) ContextSnapshot {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ContextSnapshot{
		Sequence:  sequence,
		Reason:    reason,
		NodeID:    nodeID,
		NodeType:  nodeType,
		Memory:    deepCopyMap(ec.Memory),
		Knowledge: deepCopyMap(ec.Knowledge),
		Control:   ec.Control,
		Retrieval: ec.Retrieval,
		Runtime:   ec.Runtime,
		Version:   ec.Version,
		UpdatedAt: ec.UpdatedAt,
	}
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, item := range vv {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
