package emit

import "context"

// NullEmitter implements Emitter by discarding every event. Useful when
// EMIT_BACKEND=none disables trace observability entirely without changing
// the Job Handler's wiring.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards event.
func (n *NullEmitter) Emit(event Event) {}

// EmitBatch discards every event.
func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush is a no-op: there is nothing buffered to flush.
func (n *NullEmitter) Flush(context.Context) error { return nil }
