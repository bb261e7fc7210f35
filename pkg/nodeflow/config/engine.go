package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Engine holds the settings of an execution model.
//
//	engine:
//	  auto_evaluate: true
//	  detached_workers: 4
//	  wait_timeout: 5s
//	  metrics: false
//	  tracing: false
//	  checkpoint_path: ./outputs.db
//	  log_level: debug
type Engine struct {
	AutoEvaluate    bool
	DetachedWorkers int
	WaitTimeout     time.Duration
	Metrics         bool
	Tracing         bool
	CheckpointPath  string
	LogLevel        string
}

// DefaultEngine returns the settings used for missing keys.
func DefaultEngine() Engine {
	return Engine{
		DetachedWorkers: 4,
		WaitTimeout:     30 * time.Second,
		LogLevel:        "info",
	}
}

// EngineFromConfig reads the "engine" section of c.
func EngineFromConfig(c Config) (Engine, error) {
	def := DefaultEngine()
	s := c.Sub("engine")
	e := Engine{
		AutoEvaluate:    s.Bool("auto_evaluate", def.AutoEvaluate),
		DetachedWorkers: s.Int("detached_workers", def.DetachedWorkers),
		WaitTimeout:     s.Duration("wait_timeout", def.WaitTimeout),
		Metrics:         s.Bool("metrics", def.Metrics),
		Tracing:         s.Bool("tracing", def.Tracing),
		CheckpointPath:  s.String("checkpoint_path", def.CheckpointPath),
		LogLevel:        s.String("log_level", def.LogLevel),
	}
	return e, e.Validate()
}

// LoadEngine reads engine settings from a YAML or JSON file. ${NAME}
// references are resolved from the environment.
func LoadEngine(path string) (Engine, error) {
	c, err := FromFile(path)
	if err != nil {
		return Engine{}, err
	}
	if c, err = c.Expand(os.LookupEnv); err != nil {
		return Engine{}, fmt.Errorf("%s: %w", path, err)
	}
	return EngineFromConfig(c)
}

// Validate checks the settings for values the execution model rejects.
func (e Engine) Validate() error {
	var errs []error
	if e.DetachedWorkers < 1 {
		errs = append(errs, fmt.Errorf("detached_workers must be positive, got %d", e.DetachedWorkers))
	}
	if e.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wait_timeout must be positive, got %s", e.WaitTimeout))
	}
	if _, err := parseLevel(e.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the slog level named by LogLevel, Info if it is unknown.
func (e Engine) Level() slog.Level {
	l, err := parseLevel(e.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", s)
	}
	return l, nil
}
