// Package engine implements the workflow DAG execution core: validation,
// wave scheduling, the execution context state machine, and the per-node
// run loop with retries and conditional branching.
package engine

import "errors"

// ErrUnknownNodeType is returned when a node references a type tag that was
// never registered with the node registry.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrDuplicateNodeType is returned when a node type tag is registered twice.
var ErrDuplicateNodeType = errors.New("node type already registered")

// ErrInvalidRetryPolicy names an internally inconsistent retry policy
// configuration. ResolveRetryPolicy does not return it: it clamps
// out-of-range values (e.g. MaxAttempts < 1) instead.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ValidationError describes a structural problem with a workflow's DAG or a
// node's configuration. Validation errors fail the execution before any
// step runs.
type ValidationError struct {
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NodeExecutionError wraps an error raised by a node's Execute implementation.
// It is retried according to the node's retry policy; once retries are
// exhausted it becomes the step's terminal error.
type NodeExecutionError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *NodeExecutionError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// ExecutionControlViolation is raised when a control-flow limit
// (retryCount > maxRetries or loopCount > maxLoops) is crossed. It
// terminates the execution with outcome "terminated_by_control".
type ExecutionControlViolation struct {
	Reason string
}

func (e *ExecutionControlViolation) Error() string {
	return "execution control violation: " + e.Reason
}

// RetrievalBudgetError is raised when an aggregate retrieval budget
// (requests, failures, or duration) is exceeded. It is fatal only when the
// offending retriever has failOnError set; otherwise the node receives
// empty matches.
type RetrievalBudgetError struct {
	Message string
}

func (e *RetrievalBudgetError) Error() string {
	return e.Message
}

// ProviderKeyMissing indicates no API key is available for a requested LLM
// provider, and no fallback provider succeeded either. Treated as a
// NodeExecutionError by callers.
type ProviderKeyMissing struct {
	Provider string
}

func (e *ProviderKeyMissing) Error() string {
	return "no API key available for provider: " + e.Provider
}
