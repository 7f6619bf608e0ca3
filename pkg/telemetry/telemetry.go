package telemetry

import (
	"context"
	"errors"

	"github.com/unifikation/unify/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Observer returns the engine observer that feeds metrics and traces.
func (t *Telemetry) Observer() engine.Observer {
	return engine.Observers{t.Metrics, t.Tracer}
}

// Shutdown writes the metrics textfile, if configured, and flushes traces.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Metrics.WriteTextfile(t.Config.Metrics.TextfilePath),
		t.Tracer.Shutdown(ctx),
	)
}
