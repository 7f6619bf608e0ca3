package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/engine"
	"github.com/unifikation/unify/pkg/report"
	"github.com/unifikation/unify/pkg/scenario"
	"github.com/unifikation/unify/pkg/telemetry"
)

// ErrRunAborted is returned when a run ends with status aborted.
var ErrRunAborted = errors.New("run aborted")

func newRunCommand(opts *options) *cobra.Command {
	var (
		dryRun      bool
		manager     string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Provision this machine for a scenario",
		Long: `Run every phase of a scenario in order and print the execution report.

Phases whose work is already in place are skipped. With --dry-run the
checks still run but nothing is changed. The command exits non-zero when
the run is aborted by a critical failure or an interrupt.`,
		Example: `  # Provision a development workstation
  unify run workstation

  # Show what would change, in czech
  unify run workstation --dry-run --lang cz

  # Write prometheus metrics for the node_exporter textfile collector
  unify run llm-server --metrics-file /var/lib/node_exporter/unify.prom`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := scenarioArg(args)

			cfg, err := opts.loadConfig(manager)
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(opts.telemetryConfig(metricsFile))
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(ctx); err != nil {
					tel.Logger.WithError(err).Warn("Telemetry shutdown failed")
				}
			}()

			scenarioLogger := tel.Logger.WithScenario(name)
			logger := scenarioLogger.NewComponentLogger("scenario").Zerolog()
			ctx := cmd.Context()

			execOpts := append(cfg.ExecutorOptions(), engine.WithObserver(tel.Observer()))
			executor := engine.NewExecutor(scenarioLogger.NewComponentLogger("engine").Zerolog(), execOpts...)

			orchOpts, err := opts.orchestratorOptions()
			if err != nil {
				return err
			}
			orch, err := scenario.New(cfg, opts.commandRunner(cfg, logger), executor, logger, orchOpts...)
			if err != nil {
				return err
			}

			plan, err := orch.Plan(name)
			if err != nil {
				return err
			}
			tel.Metrics.RecordPlan(string(plan.Manager), len(plan.Packages.Packages), plan.DiskMB)
			for _, issue := range plan.Packages.Issues() {
				engErr := issue.Err()
				tel.Metrics.RecordError(string(engErr.Class), engErr.Code)
			}

			out := cmd.OutOrStdout()
			if !opts.jsonOutput {
				r := opts.renderer(out)
				if err := r.Banner(); err != nil {
					return err
				}
			}

			rep, err := orch.Run(ctx, name, dryRun)
			if err != nil {
				return err
			}

			if err := opts.output(out, rep, func(r *report.Renderer) error { return r.Report(rep) }); err != nil {
				return err
			}

			if rep.Status == engine.RunStatusAborted {
				return fmt.Errorf("%w: %s", ErrRunAborted, rep.Scenario)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "check every phase without changing the system")
	cmd.Flags().StringVar(&manager, "manager", "", "package manager to use (apt, pacman, apk)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file")

	return cmd
}

// telemetryConfig derives the telemetry configuration from flags and the
// environment. Tracing is enabled with UNIFY_TRACE=otlp|stdout.
func (o *options) telemetryConfig(metricsFile string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = envOr("LOG_LEVEL", "info")
	if o.verbose {
		cfg = telemetry.DevelopmentConfig()
	}
	cfg.ServiceVersion = o.version
	cfg.Logging.NoColor = !isTerminal(os.Stderr)

	if exporter := os.Getenv("UNIFY_TRACE"); exporter != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = exporter
		cfg.Tracing.Endpoint = envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	}

	if metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = metricsFile
	}
	return cfg
}
