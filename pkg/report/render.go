// Package report renders execution reports, plans and listings for the
// terminal in English or Czech, and as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/message"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/engine"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/scenario"
)

// Renderer writes human-readable output.
type Renderer struct {
	w   io.Writer
	p   *message.Printer
	err error

	header  *color.Color
	success *color.Color
	warning *color.Color
	failure *color.Color
	info    *color.Color
	dim     *color.Color
}

// New creates a renderer writing to w. Colour escapes are emitted only when
// colored is set.
func New(w io.Writer, lang Language, colored bool) *Renderer {
	r := &Renderer{
		w:       w,
		p:       lang.Printer(),
		header:  color.New(color.FgBlue, color.Bold),
		success: color.New(color.FgGreen, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgCyan),
		dim:     color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{r.header, r.success, r.warning, r.failure, r.info, r.dim} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// T returns the localized text for key.
func (r *Renderer) T(key string, args ...any) string {
	return r.p.Sprintf(key, args...)
}

func (r *Renderer) printf(c *color.Color, format string, args ...any) {
	if r.err != nil {
		return
	}
	if c == nil {
		_, r.err = fmt.Fprintf(r.w, format, args...)
		return
	}
	_, r.err = c.Fprintf(r.w, format, args...)
}

func (r *Renderer) section(title string) {
	r.printf(nil, "\n")
	r.printf(r.header, "▸ %s\n", title)
}

func (r *Renderer) done() error {
	err := r.err
	r.err = nil
	return err
}

// Banner prints the program banner.
func (r *Renderer) Banner() error {
	r.printf(r.header, "🚀 %s\n", r.T("UNIFICATION SYSTEM SETUP"))
	return r.done()
}

// Report prints an execution report.
func (r *Renderer) Report(rep *engine.ExecutionReport) error {
	r.section(r.T("Run %s", rep.RunID))
	r.printf(nil, "  %s\n", r.T("Scenario: %s", rep.Scenario))
	if rep.DryRun {
		r.printf(r.info, "  %s\n", r.T("Dry run, nothing was changed"))
	}

	r.section(r.T("Phases"))
	width := 0
	for _, res := range rep.Results {
		width = max(width, len(res.PhaseID))
	}
	for _, res := range rep.Results {
		glyph, c := r.outcomeStyle(res.Outcome)
		r.printf(c, "  %s ", glyph)
		r.printf(nil, "%-*s  ", width, res.PhaseID)
		r.printf(c, "%s", r.T(string(res.Outcome)))
		if res.Outcome.IsFailure() {
			r.printf(r.dim, " (%s)", r.T(string(res.Criticality)))
		}
		r.printf(nil, "\n")

		if res.Error != "" {
			r.printf(r.dim, "      %s\n", res.Error)
		}
		if res.RollbackError != "" {
			r.printf(r.failure, "      %s\n", r.T("rollback failed: %s", res.RollbackError))
		}
		if res.CheckError != "" && !res.Outcome.IsFailure() {
			r.printf(r.dim, "      %s\n", r.T("check failed: %s", res.CheckError))
		}
	}

	if len(rep.Warnings) > 0 {
		r.section(r.T("Warnings"))
		for _, w := range rep.Warnings {
			r.printf(r.warning, "  ⚠ %s\n", w)
		}
	}

	s := rep.Summary()
	r.section(r.T("Summary"))
	r.printf(nil, "  %s\n", r.T("Status: %s", r.T(string(rep.Status))))
	r.printf(nil, "  %s\n", r.T("Duration: %s", rep.Duration.Round(time.Millisecond)))
	r.printf(nil, "  %s\n", r.T("%d succeeded, %d skipped, %d simulated", s.Succeeded, s.Skipped, s.Simulated))
	r.printf(nil, "  %s\n", r.T("%d failed, %d rolled back, %d not run", s.Failed, s.RolledBack, s.Aborted))
	if rep.Interrupted {
		r.printf(r.warning, "  %s\n", r.T("Run interrupted"))
	}

	r.printf(nil, "\n")
	switch rep.Status {
	case engine.RunStatusSuccess:
		r.printf(r.success, "✓ %s\n", r.T("Run completed successfully"))
	case engine.RunStatusWarnings:
		r.printf(r.warning, "⚠ %s\n", r.T("Run completed with warnings"))
	default:
		r.printf(r.failure, "✗ %s\n", r.T("Run aborted"))
	}
	return r.done()
}

func (r *Renderer) outcomeStyle(o engine.Outcome) (string, *color.Color) {
	switch o {
	case engine.OutcomeSucceeded:
		return "✓", r.success
	case engine.OutcomeSkipped:
		return "=", r.dim
	case engine.OutcomeSimulated:
		return "~", r.info
	case engine.OutcomeRolledBack:
		return "↺", r.warning
	case engine.OutcomeFailed:
		return "✗", r.failure
	default:
		return "-", r.dim
	}
}

// Plan prints a scenario plan.
func (r *Renderer) Plan(plan *scenario.Plan) error {
	pkgs := plan.Packages

	r.section(r.T("Installation plan"))
	r.printf(nil, "  %s\n", r.T("Scenario: %s", plan.Scenario))
	r.printf(nil, "  %s\n", r.T("Package manager: %s", plan.Manager))
	r.printf(nil, "  %s\n", r.T("Packages: %d", len(pkgs.Packages)))
	r.printf(nil, "  %s\n", r.T("Estimated disk usage: %d MB", plan.DiskMB))
	r.printf(nil, "  %s\n", r.T("Estimated time: %d min", minutes(plan.Estimate)))

	if len(pkgs.Packages) > 0 {
		r.printf(nil, "\n")
		for _, p := range pkgs.Packages {
			if p.Native == p.ID {
				r.printf(r.info, "  • %s\n", p.ID)
			} else {
				r.printf(r.info, "  • %s (%s)\n", p.ID, p.Native)
			}
		}
	}

	if len(pkgs.Conflicts) > 0 {
		r.section(r.T("Conflicts"))
		for _, c := range pkgs.Conflicts {
			r.printf(r.warning, "  ⚠ %s\n", c)
		}
	}
	r.list(r.T("Unresolved packages"), pkgs.Unresolved, r.failure)
	r.list(r.T("Unsupported on %s", pkgs.Manager), pkgs.Unsupported, r.warning)
	r.list(r.T("No cost estimate"), pkgs.Unestimated, r.dim)

	r.section(r.T("Phases"))
	width := 0
	for _, ph := range plan.Phases {
		width = max(width, len(ph.ID))
	}
	for i, ph := range plan.Phases {
		crit := r.dim
		if ph.Criticality == engine.CriticalityCritical {
			crit = r.warning
		}
		r.printf(nil, "  %2d. %-*s  ", i+1, width, ph.ID)
		r.printf(crit, "%-9s", r.T(string(ph.Criticality)))
		r.printf(r.dim, "  %s", ph.Estimate)
		var tags []string
		if ph.Rollback {
			tags = append(tags, r.T("rollback"))
		}
		if ph.Irreversible {
			tags = append(tags, r.T("irreversible"))
		}
		if len(tags) > 0 {
			r.printf(r.info, "  [%s]", strings.Join(tags, ", "))
		}
		r.printf(nil, "\n")
	}
	return r.done()
}

func (r *Renderer) list(title string, items []string, c *color.Color) {
	if len(items) == 0 {
		return
	}
	r.section(title)
	for _, item := range items {
		r.printf(c, "  • %s\n", item)
	}
}

// minutes rounds d up to whole minutes.
func minutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// Scenarios prints the scenario menu in registry order.
func (r *Renderer) Scenarios(list []scenario.Scenario) error {
	r.section(r.T("Scenarios"))
	width := 0
	for _, sc := range list {
		width = max(width, len(sc.Name))
	}
	for i, sc := range list {
		r.printf(r.info, "  %d. %-*s", i+1, width, sc.Name)
		r.printf(nil, "  %s", r.T("scenario."+sc.Name))
		r.printf(r.dim, "  (%s)\n", r.T("%d packages", len(sc.Packages)))
	}
	return r.done()
}

// Catalog prints one row per entry with the native name per manager.
func (r *Renderer) Catalog(entries []catalog.Entry) error {
	r.section(r.T("Package catalog"))
	r.printf(r.dim, "  %s\n\n", r.T("%d packages", len(entries)))

	managers := catalog.Managers()
	widths := make([]int, len(managers)+1)
	widths[0] = len("id")
	for i, m := range managers {
		widths[i+1] = len(m)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{e.ID}
		for _, m := range managers {
			name, ok := e.Name(m)
			if !ok {
				name = "-"
			}
			row = append(row, name)
		}
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
		rows = append(rows, row)
	}

	r.printf(r.header, "  %-*s", widths[0], "id")
	for i, m := range managers {
		r.printf(r.header, "  %-*s", widths[i+1], m)
	}
	r.printf(nil, "\n")
	for _, row := range rows {
		r.printf(nil, "  %-*s", widths[0], row[0])
		for i, cell := range row[1:] {
			c := r.dim
			if cell != "-" {
				c = nil
			}
			r.printf(c, "  %-*s", widths[i+1], cell)
		}
		r.printf(nil, "\n")
	}
	return r.done()
}

// Preconditions prints environment check results.
func (r *Renderer) Preconditions(results []handlers.Precondition) error {
	r.section(r.T("Environment check"))
	for _, p := range results {
		if p.OK {
			r.printf(r.success, "  ✓ ")
		} else {
			r.printf(r.failure, "  ✗ ")
		}
		r.printf(nil, "%s", p.Name)
		if p.Detail != "" {
			r.printf(r.dim, "  %s", p.Detail)
		}
		r.printf(nil, "\n")
	}

	r.printf(nil, "\n")
	if handlers.AllOK(results) {
		r.printf(r.success, "✓ %s\n", r.T("All preconditions met"))
	} else {
		r.printf(r.failure, "✗ %s\n", r.T("Some preconditions failed"))
	}
	return r.done()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
