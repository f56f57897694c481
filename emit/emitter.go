// Package emit provides pluggable observability backends for the execution
// engine's coarse-grained trace hook (engine.WithTraceFunc): logging,
// OpenTelemetry spans, in-memory buffering for tests, or discarding events
// entirely.
package emit

import "context"

// Emitter receives Events from a running workflow execution and forwards
// them to a concrete backend.
//
// Implementations should be non-blocking and safe for concurrent use — the
// job handler calls Emit from whichever goroutine is driving the engine.
type Emitter interface {
	// Emit sends one event to the backend. Emit should not panic; backend
	// errors are logged internally rather than returned.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been delivered. Safe to
	// call multiple times.
	Flush(ctx context.Context) error
}
