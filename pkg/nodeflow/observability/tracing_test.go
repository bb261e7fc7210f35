package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest installs a tracer provider recording into memory.
func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("nodeflow")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("nodeflow")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStartEvaluationSpan(t *testing.T) {
	exporter := setupTracingTest(t)

	_, span := StartEvaluationSpan(context.Background(), "graph", "g-1", 3)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "nodeflow.evaluate", spans[0].Name)

	attrs := attrMap(spans[0].Attributes)
	assert.Equal(t, "graph", attrs["request.kind"].AsString())
	assert.Equal(t, "g-1", attrs["graph.uuid"].AsString())
	assert.Equal(t, int64(3), attrs["request.targets"].AsInt64())
}

// TestStartNodeSpan verifies node spans nest under the evaluation span.
func TestStartNodeSpan(t *testing.T) {
	exporter := setupTracingTest(t)

	ctx, parent := StartEvaluationSpan(context.Background(), "node", "g-1", 1)
	_, child := StartNodeSpan(ctx, "Square", "n-1", "exclusive")
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	node := spans[0]
	assert.Equal(t, "nodeflow.node.Square", node.Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), node.Parent.SpanID())

	attrs := attrMap(node.Attributes)
	assert.Equal(t, "n-1", attrs["node.uuid"].AsString())
	assert.Equal(t, "exclusive", attrs["node.mode"].AsString())
}

func TestEndSpanWithError(t *testing.T) {
	exporter := setupTracingTest(t)

	t.Run("error sets status and event", func(t *testing.T) {
		exporter.Reset()
		_, span := StartNodeSpan(context.Background(), "Fail", "n", "blocking")
		EndSpanWithError(span, errors.New("boom"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "boom", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})

	t.Run("success sets ok", func(t *testing.T) {
		exporter.Reset()
		_, span := StartNodeSpan(context.Background(), "Const", "n", "main_thread")
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("nil span is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, errors.New("x"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)

	ctx, span := StartEvaluationSpan(context.Background(), "graph", "g", 1)
	AddSpanEvent(ctx, "node.invalid", attribute.String("node.uuid", "n-9"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "node.invalid", spans[0].Events[0].Name)

	t.Run("context without span is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			AddSpanEvent(context.Background(), "nothing")
		})
	})
}

func TestSpanManager(t *testing.T) {
	exporter := setupTracingTest(t)

	var m SpanManager = NewSpanManager()
	ctx, eval := m.StartEvaluationSpan(context.Background(), "graph", "g", 2)
	nodeCtx, node := m.StartNodeSpan(ctx, "Display", "n", "main_thread")
	m.AddSpanEvent(nodeCtx, "data.changed")
	m.EndSpanWithError(node, nil)
	m.EndSpanWithError(eval, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.True(t, trace.SpanContextFromContext(nodeCtx).IsValid())
}
