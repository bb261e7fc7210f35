package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records nodeflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeEvaluation records one finished callback.
	RecordNodeEvaluation(ctx context.Context, model, mode string, duration time.Duration, err error)

	// RecordRequest records an evaluateGraph, evaluateNode or auto request.
	RecordRequest(ctx context.Context, kind string, targets int)

	// RecordCheckpoint records the size of a saved checkpoint.
	RecordCheckpoint(ctx context.Context, model string, sizeBytes int64)
}

type otelMetrics struct {
	evaluations    metric.Int64Counter
	latency        metric.Float64Histogram
	failures       metric.Int64Counter
	requests       metric.Int64Counter
	checkpointSize metric.Int64Histogram
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("nodeflow")

	evaluations, err := meter.Int64Counter("nodeflow.node.evaluations",
		metric.WithDescription("Number of node evaluations"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("nodeflow.node.latency_ms",
		metric.WithDescription("Node evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("nodeflow.node.failures",
		metric.WithDescription("Number of failed node evaluations"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter("nodeflow.graph.requests",
		metric.WithDescription("Number of evaluation requests"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("nodeflow.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		evaluations:    evaluations,
		latency:        latency,
		failures:       failures,
		requests:       requests,
		checkpointSize: checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder bound to the global OTel meter
// provider at the time of the call. On failure it logs and returns a no-op
// recorder.
//
//	otel.SetMeterProvider(provider)
//	recorder := observability.NewMetricsRecorder()
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeEvaluation(ctx context.Context, model, mode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("mode", mode),
	)
	m.evaluations.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRequest(ctx context.Context, kind string, targets int) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("targets", targets),
	))
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, model string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(
		attribute.String("model", model),
	))
}
