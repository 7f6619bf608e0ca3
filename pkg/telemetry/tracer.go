package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/unifikation/unify/pkg/engine"
)

// Tracer wraps the OpenTelemetry tracer. As an engine.Observer it opens one
// span per run and one child span per executed phase.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracingConfig
}

// NewTracer creates a new tracer with the given configuration.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion, environment string) (*Tracer, error) {
	if !cfg.Enabled {
		// Return a tracer with no-op provider
		return &Tracer{
			provider: sdktrace.NewTracerProvider(),
			tracer:   otel.Tracer(serviceName),
			config:   cfg,
		}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		// Spans are created but not exported.
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		config:   cfg,
	}, nil
}

// createOTLPExporter creates an OTLP gRPC exporter.
func createOTLPExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(context.Background(), opts...)
}

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RunStarted implements engine.Observer by opening the run span.
func (t *Tracer) RunStarted(ctx context.Context, report *engine.ExecutionReport) context.Context {
	ctx, _ = t.Start(ctx, "run.execute",
		AttrRunID.String(report.RunID),
		AttrScenario.String(report.Scenario),
		AttrDryRun.Bool(report.DryRun),
	)
	return ctx
}

// PhaseStarted implements engine.Observer by opening a phase span.
func (t *Tracer) PhaseStarted(ctx context.Context, runID string, phase *engine.Phase) context.Context {
	ctx, _ = t.Start(ctx, "phase."+phase.ID,
		AttrRunID.String(runID),
		AttrPhaseID.String(phase.ID),
		AttrCriticality.String(string(phase.Criticality)),
	)
	return ctx
}

// PhaseFinished implements engine.Observer. Phases that never started are
// recorded as events on the run span.
func (t *Tracer) PhaseFinished(ctx context.Context, runID string, result engine.PhaseResult) {
	span := trace.SpanFromContext(ctx)
	if result.Outcome == engine.OutcomeAbortedUpstream {
		span.AddEvent("phase.aborted", trace.WithAttributes(AttrPhaseID.String(result.PhaseID)))
		return
	}

	span.SetAttributes(AttrOutcome.String(string(result.Outcome)))
	if result.CheckError != "" {
		span.AddEvent("check.failed", trace.WithAttributes(AttrErrorMessage.String(result.CheckError)))
	}
	if result.RollbackError != "" {
		span.AddEvent("rollback.failed", trace.WithAttributes(AttrErrorMessage.String(result.RollbackError)))
	}
	if result.Err != nil {
		span.SetAttributes(
			AttrErrorClass.String(string(result.Err.Class)),
			AttrErrorCode.String(result.Err.Code),
		)
		RecordError(span, result.Err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RunFinished implements engine.Observer by closing the run span.
func (t *Tracer) RunFinished(ctx context.Context, report *engine.ExecutionReport) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		AttrRunStatus.String(string(report.Status)),
		attribute.Int("run.warnings", len(report.Warnings)),
		attribute.Bool("run.interrupted", report.Interrupted),
	)
	if report.Status == engine.RunStatusAborted {
		span.SetStatus(codes.Error, "run aborted")
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Shutdown gracefully shuts down the tracer, flushing any pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Common attribute keys for provisioning traces.
var (
	AttrRunID     = attribute.Key("run.id")
	AttrRunStatus = attribute.Key("run.status")
	AttrScenario  = attribute.Key("run.scenario")
	AttrDryRun    = attribute.Key("run.dry_run")

	AttrPhaseID     = attribute.Key("phase.id")
	AttrCriticality = attribute.Key("phase.criticality")
	AttrOutcome     = attribute.Key("phase.outcome")

	AttrErrorClass   = attribute.Key("error.class")
	AttrErrorCode    = attribute.Key("error.code")
	AttrErrorMessage = attribute.Key("error.message")
)
