package nodeflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/checkpoint"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

func applyOptions(opts ...Option) modelConfig {
	cfg := defaultModelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// TestDefaultModelConfig verifies defaults.
func TestDefaultModelConfig(t *testing.T) {
	cfg := defaultModelConfig()

	assert.Equal(t, DefaultDetachedWorkers, cfg.detachedWorkers)
	assert.Equal(t, DefaultWaitTimeout, cfg.waitTimeout)
	assert.False(t, cfg.autoEvaluate)
	assert.Nil(t, cfg.store)
	assert.Nil(t, cfg.bus)
	assert.IsType(t, observability.NoopMetrics{}, cfg.metrics)
	assert.IsType(t, observability.NoopSpanManager{}, cfg.spans)
}

// TestOptions verifies every option sets its field.
func TestOptions(t *testing.T) {
	logger := discardLogger()
	ctx := context.WithValue(context.Background(), struct{}{}, "base")
	store := checkpoint.NewMemoryStore()
	bus := event.NewBus(event.BusConfig{NonBlocking: true})
	t.Cleanup(func() { _ = bus.Close() })

	cfg := applyOptions(
		WithLogger(logger),
		WithBaseContext(ctx),
		WithMetrics(true),
		WithTracing(true),
		WithAutoEvaluate(true),
		WithDetachedWorkers(8),
		WithWaitTimeout(time.Second),
		WithEventBus(bus),
		WithCheckpointing(store),
		WithCheckpointFailureFatal(true),
	)

	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, ctx, cfg.baseCtx)
	assert.True(t, cfg.metricsEnabled)
	assert.True(t, cfg.tracingEnabled)
	assert.True(t, cfg.autoEvaluate)
	assert.Equal(t, 8, cfg.detachedWorkers)
	assert.Equal(t, time.Second, cfg.waitTimeout)
	assert.Equal(t, bus, cfg.bus)
	assert.Equal(t, store, cfg.store)
	assert.False(t, cfg.ownsStore)
	assert.True(t, cfg.checkpointHard)
}

// TestOptions_IgnoreInvalid verifies out-of-range values keep the defaults.
func TestOptions_IgnoreInvalid(t *testing.T) {
	cfg := applyOptions(WithDetachedWorkers(0), WithWaitTimeout(-time.Second), WithBaseContext(nil))

	assert.Equal(t, DefaultDetachedWorkers, cfg.detachedWorkers)
	assert.Equal(t, DefaultWaitTimeout, cfg.waitTimeout)
	assert.NotNil(t, cfg.baseCtx)
}

// TestOptionsFromEngine verifies engine settings map onto options.
func TestOptionsFromEngine(t *testing.T) {
	e := config.DefaultEngine()
	e.AutoEvaluate = true
	e.DetachedWorkers = 2
	e.WaitTimeout = 3 * time.Second
	e.CheckpointPath = filepath.Join(t.TempDir(), "outputs.db")

	logger := discardLogger()
	opts, err := OptionsFromEngine(e, logger)
	require.NoError(t, err)

	cfg := applyOptions(opts...)
	assert.Same(t, logger, cfg.logger)
	assert.True(t, cfg.autoEvaluate)
	assert.Equal(t, 2, cfg.detachedWorkers)
	assert.Equal(t, 3*time.Second, cfg.waitTimeout)
	require.NotNil(t, cfg.store)
	assert.True(t, cfg.ownsStore)
	require.NoError(t, cfg.store.Close())
}

// TestOptionsFromEngine_DefaultLogger verifies a nil logger is replaced.
func TestOptionsFromEngine_DefaultLogger(t *testing.T) {
	e := config.DefaultEngine()
	e.LogLevel = "debug"

	opts, err := OptionsFromEngine(e, nil)
	require.NoError(t, err)
	cfg := applyOptions(opts...)
	require.NotNil(t, cfg.logger)
	assert.True(t, cfg.logger.Enabled(context.Background(), slog.LevelDebug))
	assert.Nil(t, cfg.store)
}

// TestOptionsFromEngine_Invalid verifies invalid settings are rejected.
func TestOptionsFromEngine_Invalid(t *testing.T) {
	e := config.DefaultEngine()
	e.DetachedWorkers = 0

	_, err := OptionsFromEngine(e, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached_workers")
}

// TestExecutionModel_OwnedStore verifies a store opened from engine settings
// persists evaluations and is closed with the model.
func TestExecutionModel_OwnedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs.db")
	e := config.DefaultEngine()
	e.CheckpointPath = path

	opts, err := OptionsFromEngine(e, discardLogger())
	require.NoError(t, err)
	g, _ := persistedChain(t)
	em := NewExecutionModel(g, opts...)
	require.True(t, em.EvaluateGraph().Wait(waitTimeout))
	require.NoError(t, em.Close())

	store, err := checkpoint.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	infos, err := store.List(context.Background(), "graph-1")
	require.NoError(t, err)
	assert.Len(t, infos, 3)
}
