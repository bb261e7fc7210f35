package nodeflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/checkpoint"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// DefaultDetachedWorkers bounds concurrently running ExclusiveDetached callbacks.
const DefaultDetachedWorkers = 4

// DefaultWaitTimeout is used by Future.Wait for non-positive timeouts.
const DefaultWaitTimeout = 30 * time.Second

type modelConfig struct {
	baseCtx context.Context
	logger  *slog.Logger

	metricsEnabled bool
	tracingEnabled bool
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager

	autoEvaluate    bool
	detachedWorkers int
	waitTimeout     time.Duration

	bus event.Bus

	store          checkpoint.Store
	ownsStore      bool
	checkpointHard bool
}

func defaultModelConfig() modelConfig {
	return modelConfig{
		baseCtx:         context.Background(),
		detachedWorkers: DefaultDetachedWorkers,
		waitTimeout:     DefaultWaitTimeout,
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
	}
}

// Option configures an ExecutionModel.
type Option func(*modelConfig)

// WithLogger sets the logger. Callbacks receive it enriched with node
// attributes. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *modelConfig) {
		c.logger = logger
	}
}

// WithBaseContext sets the parent of every callback context. Canceling it
// cancels running callbacks that honor their context.
func WithBaseContext(ctx context.Context) Option {
	return func(c *modelConfig) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithMetrics records evaluation metrics through the global OTel meter provider.
func WithMetrics(enabled bool) Option {
	return func(c *modelConfig) {
		c.metricsEnabled = enabled
	}
}

// WithTracing creates spans through the global OTel tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *modelConfig) {
		c.tracingEnabled = enabled
	}
}

// WithAutoEvaluate starts the model in reactive mode.
func WithAutoEvaluate(enabled bool) Option {
	return func(c *modelConfig) {
		c.autoEvaluate = enabled
	}
}

// WithDetachedWorkers bounds the background pool for ExclusiveDetached nodes.
func WithDetachedWorkers(n int) Option {
	return func(c *modelConfig) {
		if n > 0 {
			c.detachedWorkers = n
		}
	}
}

// WithWaitTimeout sets the timeout Future.Wait applies when called with a
// non-positive timeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *modelConfig) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithEventBus publishes data, evaluation and state events to bus. Events
// are published from the coordinating goroutine; use a non-blocking bus.
func WithEventBus(bus event.Bus) Option {
	return func(c *modelConfig) {
		c.bus = bus
	}
}

// WithCheckpointing saves the outputs of every successful evaluation to
// store. The model does not close store.
func WithCheckpointing(store checkpoint.Store) Option {
	return func(c *modelConfig) {
		c.store = store
		c.ownsStore = false
	}
}

// WithCheckpointFailureFatal turns checkpoint failures into node failures.
// By default they are logged and ignored.
func WithCheckpointFailureFatal(fatal bool) Option {
	return func(c *modelConfig) {
		c.checkpointHard = fatal
	}
}

// OptionsFromEngine translates engine settings into options. When a
// checkpoint path is set it opens a SQLite store which the model closes on
// Close. A nil logger gets a text logger at the configured level.
func OptionsFromEngine(e config.Engine, logger *slog.Logger) ([]Option, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: e.Level()}))
	}
	opts := []Option{
		WithLogger(logger),
		WithAutoEvaluate(e.AutoEvaluate),
		WithDetachedWorkers(e.DetachedWorkers),
		WithWaitTimeout(e.WaitTimeout),
		WithMetrics(e.Metrics),
		WithTracing(e.Tracing),
	}
	if e.CheckpointPath != "" {
		store, err := checkpoint.NewSQLiteStore(e.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		opts = append(opts, func(c *modelConfig) {
			c.store = store
			c.ownsStore = true
		})
	}
	return opts, nil
}
