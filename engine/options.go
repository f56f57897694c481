package engine

// Option configures an Engine at construction time.
//
// Functional options keep NewEngine's signature stable as the engine grows
// observability and tuning knobs:
//
//	eng := engine.NewEngine(registry, retriever, ids,
//	    engine.WithCallbacks(cb),
//	    engine.WithMetrics(metrics),
//	)
type Option func(*Engine)

// WithCallbacks wires step/snapshot/retrieval-event observers. These are
// the hooks a job handler uses to persist steps, attempts, context
// snapshots, and retrieval events as they happen.
func WithCallbacks(cb Callbacks) Option {
	return func(e *Engine) { e.callbacks = cb }
}

// WithTraceFunc wires a low-level tracer invoked at validation, wave-plan,
// and terminal boundaries — coarser-grained than the per-step Callbacks,
// useful for structured logging of the overall execution shape.
func WithTraceFunc(f func(reason string, detail map[string]interface{})) Option {
	return func(e *Engine) { e.emit = f }
}

// WithMetrics wires Prometheus metrics collection. Every node attempt
// reports its latency and, past the first, a retry increment.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}
