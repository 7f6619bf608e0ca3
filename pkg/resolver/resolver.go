// Package resolver turns a list of logical package ids into a deterministic
// installation plan for one package manager.
package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/engine"
)

// IssueKind classifies a resolution finding.
type IssueKind string

const (
	// IssueUnresolved marks an id that is not in the catalog.
	IssueUnresolved IssueKind = "UnresolvedPackage"

	// IssueUnsupported marks an id with no native name on the active manager.
	IssueUnsupported IssueKind = "UnsupportedOnManager"

	// IssueConflict marks two planned packages that are mutually exclusive.
	IssueConflict IssueKind = "PackageConflict"
)

// ConfigOverheadMB is added to the displayed disk estimate for configuration
// files, helper checkouts and caches written by the configuration phases.
const ConfigOverheadMB = 1000

// Issue is a non-fatal finding produced during resolution.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Package string    `json:"package"`
	Detail  string    `json:"detail,omitempty"`
}

func (i Issue) String() string {
	if i.Detail == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Package)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Kind, i.Package, i.Detail)
}

// Err classifies the issue as an engine error. Conflicts are conflict
// errors, everything else is permanent.
func (i Issue) Err() *engine.EngineError {
	cause := errors.New(i.String())
	switch i.Kind {
	case IssueConflict:
		return engine.NewConflictError("package conflict", cause).WithCode(engine.ErrCodePackageConflict)
	case IssueUnsupported:
		return engine.NewPermanentError("package unsupported", cause).WithCode(engine.ErrCodeUnsupportedPackage)
	default:
		return engine.NewPermanentError("package unresolved", cause).WithCode(engine.ErrCodeUnresolvedPackage)
	}
}

// Package is one planned installation.
type Package struct {
	ID        string `json:"id"`
	Native    string `json:"native"`
	DiskMB    int    `json:"disk_mb"`
	Seconds   int    `json:"seconds"`
	Estimated bool   `json:"estimated"`
}

// Conflict is a pair of planned packages that should not coexist.
type Conflict struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Reason string `json:"reason,omitempty"`
}

func (c Conflict) String() string {
	if c.Reason == "" {
		return fmt.Sprintf("%s <-> %s", c.A, c.B)
	}
	return fmt.Sprintf("%s <-> %s: %s", c.A, c.B, c.Reason)
}

// InstallationPlan is the result of a resolution. It is a value; callers
// must not mutate its slices.
type InstallationPlan struct {
	Manager     catalog.Manager `json:"manager"`
	Packages    []Package       `json:"packages"`
	Unresolved  []string        `json:"unresolved,omitempty"`
	Unsupported []string        `json:"unsupported,omitempty"`
	Unestimated []string        `json:"unestimated,omitempty"`
	Conflicts   []Conflict      `json:"conflicts,omitempty"`
	DiskMB      int             `json:"disk_mb"`
	Seconds     int             `json:"seconds"`
}

// NativeNames returns the native package names in install order.
func (p InstallationPlan) NativeNames() []string {
	out := make([]string, 0, len(p.Packages))
	for _, pkg := range p.Packages {
		out = append(out, pkg.Native)
	}
	return out
}

// EstimatedDuration returns the install time estimate.
func (p InstallationPlan) EstimatedDuration() time.Duration {
	return time.Duration(p.Seconds) * time.Second
}

// Empty reports whether nothing needs to be installed.
func (p InstallationPlan) Empty() bool {
	return len(p.Packages) == 0
}

// Issues returns every finding in a stable order: unresolved, unsupported,
// then conflicts.
func (p InstallationPlan) Issues() []Issue {
	var issues []Issue
	for _, id := range p.Unresolved {
		issues = append(issues, Issue{Kind: IssueUnresolved, Package: id})
	}
	for _, id := range p.Unsupported {
		issues = append(issues, Issue{Kind: IssueUnsupported, Package: id, Detail: string(p.Manager)})
	}
	for _, c := range p.Conflicts {
		issues = append(issues, Issue{Kind: IssueConflict, Package: c.A + "," + c.B, Detail: c.Reason})
	}
	return issues
}

// Resolver maps logical ids to native names using a catalog and fixed tables.
type Resolver struct {
	catalog   *catalog.Catalog
	costs     map[string]Cost
	conflicts []ConflictRule
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCosts replaces the cost table.
func WithCosts(costs map[string]Cost) Option {
	return func(r *Resolver) {
		r.costs = costs
	}
}

// WithConflicts replaces the conflict table.
func WithConflicts(rules []ConflictRule) Option {
	return func(r *Resolver) {
		r.conflicts = rules
	}
}

// New creates a resolver over the given catalog.
func New(c *catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:   c,
		costs:     DefaultCosts,
		conflicts: DefaultConflicts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the installation plan for requested on manager. It never
// fails: unknown and unsupported ids are reported on the plan instead.
func (r *Resolver) Resolve(requested []string, manager catalog.Manager) InstallationPlan {
	plan := InstallationPlan{Manager: manager, Packages: []Package{}}

	seenID := make(map[string]bool, len(requested))
	seenNative := make(map[string]bool, len(requested))
	present := make(map[string]bool, len(requested))

	for _, id := range requested {
		if seenID[id] {
			continue
		}
		seenID[id] = true

		entry, err := r.catalog.Lookup(id)
		if err != nil {
			plan.Unresolved = append(plan.Unresolved, id)
			continue
		}

		native, ok := entry.Name(manager)
		if !ok {
			plan.Unsupported = append(plan.Unsupported, id)
			continue
		}

		present[id] = true
		if seenNative[native] {
			continue
		}
		seenNative[native] = true

		pkg := Package{ID: id, Native: native}
		if cost, ok := r.costs[id]; ok {
			pkg.DiskMB = cost.DiskMB
			pkg.Seconds = cost.Seconds
			pkg.Estimated = true
		} else {
			plan.Unestimated = append(plan.Unestimated, id)
		}

		plan.DiskMB += pkg.DiskMB
		plan.Seconds += pkg.Seconds
		plan.Packages = append(plan.Packages, pkg)
	}

	for _, rule := range r.conflicts {
		if !rule.appliesTo(manager) {
			continue
		}
		if present[rule.A] && present[rule.B] {
			plan.Conflicts = append(plan.Conflicts, Conflict{A: rule.A, B: rule.B, Reason: rule.Reason})
		}
	}

	return plan
}
