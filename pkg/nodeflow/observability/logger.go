// Package observability provides structured logging, metrics and tracing
// helpers for the nodeflow execution model.
//
// Logging uses slog. Metrics and tracing use the global OpenTelemetry
// providers and have no-op implementations for when they are disabled.
// Every helper tolerates a nil logger.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds graph and node attributes to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, graphUUID, nodeUUID, "Square")
//	enriched.Info("computing") // includes graph_uuid, node_uuid, node
func EnrichLogger(logger *slog.Logger, graphUUID, nodeUUID, caption string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("graph_uuid", graphUUID),
		slog.String("node_uuid", nodeUUID),
		slog.String("node", caption),
	)
}

// LogEvaluationRequested logs an evaluateGraph or evaluateNode request.
func LogEvaluationRequested(logger *slog.Logger, kind string, targets int) {
	if logger == nil {
		return
	}
	logger.Info("evaluation requested",
		slog.String("kind", kind),
		slog.Int("targets", targets),
	)
}

// LogEvaluationResolved logs the resolution of a request's targets.
func LogEvaluationResolved(logger *slog.Logger, kind string, success bool, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "evaluation resolved",
		slog.String("kind", kind),
		slog.Bool("success", success),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogAutoEvaluation logs switching the reactive mode on or off.
func LogAutoEvaluation(logger *slog.Logger, enabled bool) {
	if logger == nil {
		return
	}
	logger.Info("auto evaluation", slog.Bool("enabled", enabled))
}

// LogNodeStart logs the dispatch of a node.
func LogNodeStart(logger *slog.Logger, mode string) {
	if logger == nil {
		return
	}
	logger.Debug("node evaluating",
		slog.String("mode", mode),
	)
}

// LogNodeComplete logs a successful evaluation.
func LogNodeComplete(logger *slog.Logger, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node evaluated",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a failed evaluation.
func LogNodeError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("error", err.Error()),
	)
}

// LogNodeInvalidated logs a node turning Invalid without being evaluated,
// for example because a Required input cannot be resolved.
func LogNodeInvalidated(logger *slog.Logger, nodeUUID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node invalid",
		slog.String("node_uuid", nodeUUID),
		slog.String("reason", err.Error()),
	)
}

// LogCheckpoint logs a saved checkpoint.
func LogCheckpoint(logger *slog.Logger, nodeUUID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_uuid", nodeUUID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, nodeUUID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_uuid", nodeUUID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the elapsed time in
// milliseconds since TimedOperation was called.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
