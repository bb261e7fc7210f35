package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("nodeflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEvaluationSpan starts a span covering one evaluation request until
	// its targets resolve.
	StartEvaluationSpan(ctx context.Context, kind, graphUUID string, targets int) (context.Context, trace.Span)

	// StartNodeSpan starts a span for a single callback.
	StartNodeSpan(ctx context.Context, caption, nodeUUID, mode string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err if non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartEvaluationSpan(ctx context.Context, kind, graphUUID string, targets int) (context.Context, trace.Span) {
	return StartEvaluationSpan(ctx, kind, graphUUID, targets)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, caption, nodeUUID, mode string) (context.Context, trace.Span) {
	return StartNodeSpan(ctx, caption, nodeUUID, mode)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartEvaluationSpan starts a "nodeflow.evaluate" span.
func StartEvaluationSpan(ctx context.Context, kind, graphUUID string, targets int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nodeflow.evaluate",
		trace.WithAttributes(
			attribute.String("request.kind", kind),
			attribute.String("graph.uuid", graphUUID),
			attribute.Int("request.targets", targets),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a "nodeflow.node.<caption>" span.
func StartNodeSpan(ctx context.Context, caption, nodeUUID, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nodeflow.node."+caption,
		trace.WithAttributes(
			attribute.String("node.uuid", nodeUUID),
			attribute.String("node.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, recording err if non-nil.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the recording span in ctx.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
