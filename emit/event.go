package emit

// Event is one observability point emitted while a workflow execution runs:
// node lifecycle, context mutation, or a top-level execution outcome.
//
// Events are handed to an Emitter, which may log them, turn them into
// OpenTelemetry spans, buffer them for inspection, or discard them.
type Event struct {
	// ExecutionID identifies the workflow execution that emitted this event.
	ExecutionID string

	// Sequence is the execution context's monotonic snapshot sequence at the
	// time of the event. Zero for events not tied to a particular snapshot
	// (e.g. DAG validation, before any node has run).
	Sequence int

	// NodeID identifies which node emitted this event. Empty for
	// execution-level events (validate, waves_planned, execution_completed).
	NodeID string

	// NodeType is the node's registry type tag, alongside NodeID.
	NodeType string

	// Msg is a short event name: "validate", "waves_planned", "step",
	// "execution_error", "execution_completed", and so on.
	Msg string

	// Meta carries event-specific structured data, e.g. "error", "steps",
	// "valid", "waves".
	Meta map[string]interface{}
}
