package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a debug-level JSON logger and a function decoding
// everything written to it so far.
func captureLogger() (*slog.Logger, func() []map[string]any) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() []map[string]any {
		var records []map[string]any
		for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal(line, &m); err == nil {
				records = append(records, m)
			}
		}
		return records
	}
}

func lastRecord(t *testing.T, records func() []map[string]any) map[string]any {
	t.Helper()
	all := records()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds graph and node attributes", func(t *testing.T) {
		logger, records := captureLogger()

		EnrichLogger(logger, "g-1", "n-1", "Square").Info("computing")

		rec := lastRecord(t, records)
		assert.Equal(t, "g-1", rec["graph_uuid"])
		assert.Equal(t, "n-1", rec["node_uuid"])
		assert.Equal(t, "Square", rec["node"])
		assert.Equal(t, "computing", rec["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "g", "n", "c"))
	})
}

func TestLogHelpers(t *testing.T) {
	t.Run("evaluation requested", func(t *testing.T) {
		logger, records := captureLogger()
		LogEvaluationRequested(logger, "graph", 4)

		rec := lastRecord(t, records)
		assert.Equal(t, "INFO", rec["level"])
		assert.Equal(t, "graph", rec["kind"])
		assert.Equal(t, float64(4), rec["targets"])
	})

	t.Run("failed resolution logs at warn", func(t *testing.T) {
		logger, records := captureLogger()
		LogEvaluationResolved(logger, "node", false, 12.5)

		rec := lastRecord(t, records)
		assert.Equal(t, "WARN", rec["level"])
		assert.Equal(t, false, rec["success"])
		assert.Equal(t, 12.5, rec["duration_ms"])
	})

	t.Run("node lifecycle", func(t *testing.T) {
		logger, records := captureLogger()
		LogNodeStart(logger, "exclusive")
		LogNodeComplete(logger, 3)
		LogNodeError(logger, errors.New("boom"))

		all := records()
		require.Len(t, all, 3)
		assert.Equal(t, "node evaluating", all[0]["msg"])
		assert.Equal(t, "exclusive", all[0]["mode"])
		assert.Equal(t, "DEBUG", all[1]["level"])
		assert.Equal(t, "ERROR", all[2]["level"])
		assert.Equal(t, "boom", all[2]["error"])
	})

	t.Run("invalidated node carries reason", func(t *testing.T) {
		logger, records := captureLogger()
		LogNodeInvalidated(logger, "n-2", errors.New("required input unresolved"))

		rec := lastRecord(t, records)
		assert.Equal(t, "n-2", rec["node_uuid"])
		assert.Equal(t, "required input unresolved", rec["reason"])
	})

	t.Run("checkpoint", func(t *testing.T) {
		logger, records := captureLogger()
		LogCheckpoint(logger, "n-3", 128)
		LogCheckpointError(logger, "n-3", "save", errors.New("disk full"))

		all := records()
		require.Len(t, all, 2)
		assert.Equal(t, float64(128), all[0]["size_bytes"])
		assert.Equal(t, "save", all[1]["operation"])
	})

	t.Run("nil logger is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEvaluationRequested(nil, "graph", 1)
			LogEvaluationResolved(nil, "graph", true, 1)
			LogAutoEvaluation(nil, true)
			LogNodeStart(nil, "blocking")
			LogNodeComplete(nil, 1)
			LogNodeError(nil, errors.New("x"))
			LogNodeInvalidated(nil, "n", errors.New("x"))
			LogCheckpoint(nil, "n", 1)
			LogCheckpointError(nil, "n", "save", errors.New("x"))
		})
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(5))
}
