// Package telemetry provides logging, tracing and metrics for provisioning
// runs.
//
// Logging wraps zerolog. Tracing uses OpenTelemetry with stdout or OTLP
// exporters. Metrics use a private Prometheus registry and are written to a
// node_exporter textfile after the run, since the CLI does not stay up long
// enough to be scraped.
//
// Both Tracer and Metrics implement engine.Observer:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	exec := engine.NewExecutor(tel.Logger.Zerolog(), engine.WithObserver(tel.Observer()))
//	report := exec.Run(ctx, "workstation", phases, false)
//
// The run gets one span named run.execute with a child span per executed
// phase. Phases skipped after an abort appear as events on the run span.
package telemetry
