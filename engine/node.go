package engine

import (
	"context"
	"fmt"
	"sync"
)

// NodeConfig is the opaque, string-keyed configuration carried by a workflow
// node. Its shape is interpreted entirely by the node type's own
// Validate/Execute implementation.
type NodeConfig map[string]interface{}

// ValidationResult is returned by a node type's Validate function.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Input is assembled by the node runner and handed to a node's Execute
// function. Data is the merged trigger payload and matching-parent output;
// Metadata carries the node's own config plus execution/workflow identifiers
// and, once control signals are interpreted, nothing the node needs to set
// itself.
type Input struct {
	Data     map[string]interface{}
	Metadata map[string]interface{}
}

// Output is what a node's Execute function returns. Nodes communicate retry
// requests and context patches back to the runner exclusively through the
// Metadata map — see the "metadata.contextPatch" and "metadata.retry" keys
// documented on NodeDefinition.Execute.
type Output struct {
	Data     map[string]interface{}
	Metadata map[string]interface{}
}

// NodeDefinition is the (validate, execute) pair a node type registers with
// the Registry.
//
// Validate checks a node's config in isolation, before any execution starts.
//
// Execute runs the node for one attempt. It receives the assembled Input and
// a handle to the live ExecutionContext (read/patch access only). It may
// signal the runner via Output.Metadata:
//   - "contextPatch": map[string]interface{} — merged into the execution
//     context via ExecutionContext.ApplyPatch before the runner inspects
//     anything else.
//   - "retry": a bool, or a map with "requested" (bool), "reason" (string),
//     "delayMs" (int) — asks the runner to re-run this node, subject to its
//     retry policy. When "retry" is absent, a bool "shouldRetry" has the
//     same effect as a bool "retry".
type NodeDefinition struct {
	Type     string
	Validate func(config NodeConfig) ValidationResult
	Execute  func(ctx context.Context, in Input, ec *ExecutionContext) (Output, error)
}

// Registry is a process-wide, concurrency-safe mapping from node-type tag to
// its NodeDefinition. Registrations happen once at startup; Resolve is
// called once per node per execution.
type Registry struct {
	mu    sync.RWMutex
	defns map[string]NodeDefinition
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{defns: make(map[string]NodeDefinition)}
}

// Register adds a node type to the registry. It fails with
// ErrDuplicateNodeType if the tag is already registered.
func (r *Registry) Register(def NodeDefinition) error {
	if def.Type == "" {
		return &ValidationError{Message: "node type tag must not be empty", Code: "EMPTY_NODE_TYPE"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defns[def.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeType, def.Type)
	}
	r.defns[def.Type] = def
	return nil
}

// Resolve looks up a node type's definition. It returns ErrUnknownNodeType
// when the tag was never registered.
func (r *Registry) Resolve(nodeType string) (NodeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, exists := r.defns[nodeType]
	if !exists {
		return NodeDefinition{}, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}
	return def, nil
}

// Types returns the currently registered node type tags, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defns))
	for t := range r.defns {
		out = append(out, t)
	}
	return out
}
