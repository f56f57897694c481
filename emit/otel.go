package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by turning each event into an immediate
// OpenTelemetry span: span name is event.Msg, standard fields (executionId,
// sequence, nodeId, nodeType) and event.Meta become attributes, and a
// "workflowengine.node.latency_ms"-style remap applies to a handful of
// well-known metadata keys emitted by the LLM and retry paths.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an OTelEmitter against tracer (e.g.
// otel.Tracer("workflowengine")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span representing event. Spans are
// points in time, not durations, since the engine's trace hook fires after
// the fact.
func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)
	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch starts and ends one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)
		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}
		span.End()
	}
	return nil
}

// Flush force-flushes the global tracer provider if it supports it (the SDK
// provider does; the no-op default provider doesn't).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("workflowengine.execution_id", event.ExecutionID),
		attribute.Int("workflowengine.sequence", event.Sequence),
		attribute.String("workflowengine.node_id", event.NodeID),
		attribute.String("workflowengine.node_type", event.NodeType),
	)
}

// addMetadataAttributes converts event metadata to span attributes,
// remapping a handful of LLM/retry keys onto namespaced OpenTelemetry
// attribute names.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}
	for key, value := range meta {
		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "workflowengine.llm.tokens_in"
		case "tokens_out":
			attrKey = "workflowengine.llm.tokens_out"
		case "cost_usd":
			attrKey = "workflowengine.llm.cost_usd"
		case "latency_ms":
			attrKey = "workflowengine.node.latency_ms"
		case "model":
			attrKey = "workflowengine.llm.model"
		case "attempt":
			attrKey = "workflowengine.attempt"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
