package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/report"
	"github.com/unifikation/unify/pkg/scenario"
)

// options holds the persistent flags and the injectable dependencies shared
// by all subcommands.
type options struct {
	configPath  string
	catalogPath string
	verbose     bool
	jsonOutput  bool
	lang        string
	version     string

	// runner replaces the local command runner when set.
	runner handlers.Runner

	// scenarioOpts are appended to every orchestrator.
	scenarioOpts []scenario.Option

	// precheck evaluates environment preconditions.
	precheck func(ctx context.Context, commands []string, addr string) []handlers.Precondition
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate, &options{})
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string, opts *options) *cobra.Command {
	opts.version = version
	if opts.precheck == nil {
		opts.precheck = func(ctx context.Context, commands []string, addr string) []handlers.Precondition {
			return handlers.NewEnvironmentCheck(commands, addr).Run(ctx)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "unify",
		Short: "Unify - phased workstation provisioning",
		Long: `Unify provisions a machine for a named scenario in ordered phases.

Each phase checks whether its work is already done, applies it otherwise and
rolls back on failure where it can. Critical phase failures abort the run,
advisory failures are recorded as warnings.

Scenarios:
  workstation    full development workstation
  llm-server     LLM server packages
  orchestration  home automation hub packages
  database       database server packages
  monitoring     monitoring packages`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			_, err := report.ParseLanguage(opts.lang)
			return err
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("UNIFY_CONFIG"), "scenario config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", os.Getenv("UNIFY_CATALOG"), "package catalog overlay file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&opts.lang, "lang", "l", envOr("UNIFY_LANG", "en"), "output language (en, cz)")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newCatalogCommand(opts))
	rootCmd.AddCommand(newScenariosCommand(opts))
	rootCmd.AddCommand(newCheckCommand(opts))

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// renderer returns a text renderer for w, coloured when w is a terminal.
func (o *options) renderer(w io.Writer) *report.Renderer {
	lang, err := report.ParseLanguage(o.lang)
	if err != nil {
		lang = report.English
	}
	return report.New(w, lang, isTerminal(w))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// output writes v as JSON or renders it as text.
func (o *options) output(w io.Writer, v any, text func(*report.Renderer) error) error {
	if o.jsonOutput {
		return report.WriteJSON(w, v)
	}
	return text(o.renderer(w))
}

// loadConfig reads the scenario config. manager overrides the configured
// package manager when non-empty.
func (o *options) loadConfig(manager string) (*scenario.Config, error) {
	cfg, err := scenario.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if manager == "" {
		manager = os.Getenv("UNIFY_MANAGER")
	}
	if manager != "" {
		m, err := catalog.ParseManager(manager)
		if err != nil {
			return nil, err
		}
		cfg.Manager = string(m)
	}
	return cfg, nil
}

// loadCatalog returns the built-in catalog merged with the overlay, if any.
func (o *options) loadCatalog() (*catalog.Catalog, error) {
	if o.catalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadOverlay(catalog.Default(), o.catalogPath)
}

// orchestratorOptions returns the scenario options derived from the flags.
func (o *options) orchestratorOptions() ([]scenario.Option, error) {
	cat, err := o.loadCatalog()
	if err != nil {
		return nil, err
	}
	return append([]scenario.Option{scenario.WithCatalog(cat)}, o.scenarioOpts...), nil
}

// commandRunner returns the injected runner or a local one.
func (o *options) commandRunner(cfg *scenario.Config, logger zerolog.Logger) handlers.Runner {
	if o.runner != nil {
		return o.runner
	}
	return handlers.NewCommandRunner(logger, cfg.RunnerOptions()...)
}

func scenarioArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return envOr("UNIFY_SCENARIO", "workstation")
}

func logger() zerolog.Logger {
	return log.Logger
}
