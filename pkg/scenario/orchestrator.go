// Package scenario turns a named provisioning scenario into an ordered phase
// list and runs it through the engine.
package scenario

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/engine"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/resolver"
)

// PhaseInfo describes a phase for plan display.
type PhaseInfo struct {
	ID           string             `json:"id"`
	Description  string             `json:"description"`
	Criticality  engine.Criticality `json:"criticality"`
	Estimate     time.Duration      `json:"estimate"`
	Rollback     bool               `json:"rollback,omitempty"`
	Irreversible bool               `json:"irreversible,omitempty"`
}

// Plan is what a scenario would do on this host.
type Plan struct {
	Scenario string                    `json:"scenario"`
	Manager  catalog.Manager           `json:"manager"`
	Packages resolver.InstallationPlan `json:"packages"`
	Phases   []PhaseInfo               `json:"phases"`

	// DiskMB is the package estimate plus the configuration overhead.
	DiskMB int `json:"disk_mb"`

	// Estimate is the sum of all phase estimates.
	Estimate time.Duration `json:"estimate"`
}

// Orchestrator builds and runs scenario phase lists.
type Orchestrator struct {
	cfg       *Config
	catalog   *catalog.Catalog
	resolver  *resolver.Resolver
	executor  *engine.Executor
	runner    handlers.Runner
	files     *handlers.Files
	manager   catalog.Manager
	retry     handlers.RetryPolicy
	home      string
	indexPath string
	lookPath  func(string) (string, error)
	logger    zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog replaces the built-in package catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithManager forces the package manager, skipping detection.
func WithManager(m catalog.Manager) Option {
	return func(o *Orchestrator) {
		o.manager = m
	}
}

// WithFiles sets the file helper used for system files.
func WithFiles(f *handlers.Files) Option {
	return func(o *Orchestrator) {
		o.files = f
	}
}

// WithHome sets the directory "~/" paths expand to.
func WithHome(dir string) Option {
	return func(o *Orchestrator) {
		o.home = dir
	}
}

// WithIndexPath overrides the package index location used for freshness.
func WithIndexPath(path string) Option {
	return func(o *Orchestrator) {
		o.indexPath = path
	}
}

// WithLookPath replaces exec.LookPath for command detection.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.lookPath = fn
		}
	}
}

// WithRetryPolicy sets the retry policy for network-bound commands.
func WithRetryPolicy(p handlers.RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// New creates an orchestrator. A nil cfg uses DefaultConfig. The package
// manager comes from WithManager, then cfg.Manager, then detection.
func New(cfg *Config, runner handlers.Runner, executor *engine.Executor, logger zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for name := range cfg.Packages {
		if _, err := Lookup(name); err != nil {
			return nil, fmt.Errorf("invalid package override: %w", err)
		}
	}

	o := &Orchestrator{
		cfg:      cfg,
		catalog:  catalog.Default(),
		executor: executor,
		runner:   runner,
		retry:    handlers.DefaultRetryPolicy,
		lookPath: exec.LookPath,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			o.home = home
		}
	}
	if o.files == nil {
		o.files = handlers.NewFiles(runner, !handlers.IsRoot())
	}

	if o.manager == "" && cfg.Manager != "" {
		m, err := catalog.ParseManager(cfg.Manager)
		if err != nil {
			return nil, err
		}
		o.manager = m
	}
	if o.manager == "" {
		m, err := handlers.DetectManager(o.lookPath)
		if err != nil {
			return nil, err
		}
		o.manager = m
	}
	if err := o.manager.Validate(); err != nil {
		return nil, err
	}

	o.resolver = resolver.New(o.catalog)
	return o, nil
}

// Manager returns the package manager in use.
func (o *Orchestrator) Manager() catalog.Manager {
	return o.manager
}

// Plan resolves the scenario's packages and lists its phases without
// touching the system.
func (o *Orchestrator) Plan(name string) (*Plan, error) {
	sc, pkgPlan, phases, err := o.prepare(name)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Scenario: sc.Name,
		Manager:  o.manager,
		Packages: pkgPlan,
		Phases:   make([]PhaseInfo, 0, len(phases)),
		DiskMB:   pkgPlan.DiskMB + resolver.ConfigOverheadMB,
		Estimate: engine.TotalEstimate(phases),
	}
	for _, p := range phases {
		plan.Phases = append(plan.Phases, PhaseInfo{
			ID:           p.ID,
			Description:  p.Description,
			Criticality:  p.Criticality,
			Estimate:     p.Estimate,
			Rollback:     p.HasRollback(),
			Irreversible: p.Irreversible,
		})
	}
	return plan, nil
}

// Run executes the scenario. dryRun is passed to the executor unchanged.
// The error is non-nil only when the phase list cannot be built; phase
// failures are reported in the ExecutionReport.
func (o *Orchestrator) Run(ctx context.Context, name string, dryRun bool) (*engine.ExecutionReport, error) {
	if o.executor == nil {
		return nil, fmt.Errorf("orchestrator has no executor")
	}

	sc, pkgPlan, phases, err := o.prepare(name)
	if err != nil {
		return nil, err
	}

	issues := pkgPlan.Issues()
	for _, issue := range issues {
		o.logger.Warn().
			Str("kind", string(issue.Kind)).
			Str("package", issue.Package).
			Msg("Package plan issue")
	}

	report := o.executor.Run(ctx, sc.Name, phases, dryRun)
	for _, issue := range issues {
		report.Warnings = append(report.Warnings, issue.String())
	}
	return report, nil
}

func (o *Orchestrator) prepare(name string) (Scenario, resolver.InstallationPlan, []engine.Phase, error) {
	sc, err := Lookup(name)
	if err != nil {
		return Scenario{}, resolver.InstallationPlan{}, nil, err
	}

	packages := sc.Packages
	if override, ok := o.cfg.Packages[sc.Name]; ok {
		packages = override
	}
	pkgPlan := o.resolver.Resolve(packages, o.manager)

	phases := o.buildPhases(sc, pkgPlan)
	for i := range phases {
		phases[i].Criticality = o.cfg.CriticalityFor(phases[i].ID, phases[i].Criticality)
	}
	if err := engine.ValidatePhases(phases); err != nil {
		return Scenario{}, resolver.InstallationPlan{}, nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	return sc, pkgPlan, phases, nil
}

// path expands a leading "~/" against the orchestrator home.
func (o *Orchestrator) path(p string) string {
	if p == "~" {
		return o.home
	}
	if strings.HasPrefix(p, "~/") && o.home != "" {
		return filepath.Join(o.home, p[2:])
	}
	return p
}

// nativeNames maps catalog ids to native names, dropping unsupported ids.
func (o *Orchestrator) nativeNames(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if name, ok := o.catalog.NativeName(id, o.manager); ok {
			out = append(out, name)
		}
	}
	return out
}

// ExecutorOptions returns the executor options implied by the timeouts.
func (c *Config) ExecutorOptions() []engine.ExecutorOption {
	return []engine.ExecutorOption{
		engine.WithApplyTimeout(c.Timeouts.Apply),
		engine.WithCheckTimeout(c.Timeouts.Check),
		engine.WithRollbackTimeout(c.Timeouts.Rollback),
	}
}

// RunnerOptions returns the command runner options implied by the timeouts.
func (c *Config) RunnerOptions() []handlers.RunnerOption {
	return []handlers.RunnerOption{
		handlers.WithTimeout(c.Timeouts.Command),
		handlers.WithMaxOutput(c.Timeouts.MaxOutput),
	}
}
