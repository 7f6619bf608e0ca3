package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unifikation/unify/pkg/engine"
)

// Metrics provides Prometheus metrics for provisioning runs. It implements
// engine.Observer so it can be attached to an executor directly.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runWarnings     *prometheus.GaugeVec
	lastRunUnixTime *prometheus.GaugeVec

	// Phase metrics
	phasesExecuted *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	rollbacks      *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Plan metrics
	planPackages *prometheus.GaugeVec
	planDiskMB   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of provisioning runs completed",
			},
			[]string{"scenario", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   buckets,
			},
			[]string{"scenario", "status"},
		),
		runWarnings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_warnings",
				Help:      "Number of warnings recorded by the last run",
			},
			[]string{"scenario"},
		),
		lastRunUnixTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run completed",
			},
			[]string{"scenario", "status"},
		),

		phasesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_total",
				Help:      "Total number of phases by outcome",
			},
			[]string{"criticality", "outcome"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of phase execution in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollbacks by result",
			},
			[]string{"result"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of phase errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of phase errors by error code",
			},
			[]string{"code"},
		),

		planPackages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_packages",
				Help:      "Number of packages in the last installation plan",
			},
			[]string{"manager"},
		),
		planDiskMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_disk_megabytes",
				Help:      "Estimated disk usage of the last installation plan",
			},
			[]string{"manager"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.runWarnings,
		m.lastRunUnixTime,
		m.phasesExecuted,
		m.phaseDuration,
		m.rollbacks,
		m.errorsByClass,
		m.errorsByCode,
		m.planPackages,
		m.planDiskMB,
	)

	return m, nil
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted implements engine.Observer.
func (m *Metrics) RunStarted(ctx context.Context, report *engine.ExecutionReport) context.Context {
	return ctx
}

// PhaseStarted implements engine.Observer.
func (m *Metrics) PhaseStarted(ctx context.Context, runID string, phase *engine.Phase) context.Context {
	return ctx
}

// PhaseFinished implements engine.Observer.
func (m *Metrics) PhaseFinished(ctx context.Context, runID string, result engine.PhaseResult) {
	m.RecordPhase(result)
}

// RunFinished implements engine.Observer.
func (m *Metrics) RunFinished(ctx context.Context, report *engine.ExecutionReport) {
	m.RecordRun(report)
}

// RecordPhase records the outcome of one phase.
func (m *Metrics) RecordPhase(result engine.PhaseResult) {
	if m.phasesExecuted == nil {
		return
	}
	m.phasesExecuted.WithLabelValues(string(result.Criticality), string(result.Outcome)).Inc()
	if result.Outcome.IsExecuted() {
		m.phaseDuration.WithLabelValues(result.PhaseID).Observe(result.Duration.Seconds())
	}

	if result.Outcome == engine.OutcomeRolledBack {
		status := "restored"
		if result.RollbackError != "" {
			status = "failed"
		}
		m.rollbacks.WithLabelValues(status).Inc()
	}

	if result.Err != nil {
		m.RecordError(string(result.Err.Class), result.Err.Code)
	}
}

// RecordRun records a completed run with its status and duration.
func (m *Metrics) RecordRun(report *engine.ExecutionReport) {
	if m.runsCompleted == nil || report == nil {
		return
	}
	status := string(report.Status)
	m.runsCompleted.WithLabelValues(report.Scenario, status).Inc()
	m.runDuration.WithLabelValues(report.Scenario, status).Observe(report.Duration.Seconds())
	m.runWarnings.WithLabelValues(report.Scenario).Set(float64(len(report.Warnings)))
	m.lastRunUnixTime.WithLabelValues(report.Scenario, status).Set(float64(report.CompletedAt.Unix()))
}

// RecordPlan records the size of an installation plan.
func (m *Metrics) RecordPlan(manager string, packages int, diskMB int) {
	if m.planPackages == nil {
		return
	}
	m.planPackages.WithLabelValues(manager).Set(float64(packages))
	m.planDiskMB.WithLabelValues(manager).Set(float64(diskMB))
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// WriteTextfile writes all metrics to path in the text exposition format,
// suitable for the node_exporter textfile collector. It does nothing when
// metrics are disabled.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
