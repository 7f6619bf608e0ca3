package engine

import (
	"time"
)

// PhaseResult records what happened to one phase.
type PhaseResult struct {
	PhaseID       string        `json:"phase_id"`
	Description   string        `json:"description"`
	Criticality   Criticality   `json:"criticality"`
	Outcome       Outcome       `json:"outcome"`
	Decision      Decision      `json:"decision,omitempty"`
	Error         string        `json:"error,omitempty"`
	CheckError    string        `json:"check_error,omitempty"`
	RollbackError string        `json:"rollback_error,omitempty"`
	Irreversible  bool          `json:"irreversible,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	Duration      time.Duration `json:"duration"`

	// Err is the classified apply error, if any.
	Err *EngineError `json:"-"`
}

// ExecutionReport is the outcome of a provisioning run.
type ExecutionReport struct {
	RunID       string        `json:"run_id"`
	Scenario    string        `json:"scenario"`
	DryRun      bool          `json:"dry_run"`
	Status      RunStatus     `json:"status"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Results     []PhaseResult `json:"results"`
	Warnings    []string      `json:"warnings,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// ReportSummary counts phase outcomes.
type ReportSummary struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Skipped    int `json:"skipped"`
	Simulated  int `json:"simulated"`
	Failed     int `json:"failed"`
	RolledBack int `json:"rolled_back"`
	Aborted    int `json:"aborted"`
}

// Summary counts the outcomes of all phases.
func (r *ExecutionReport) Summary() ReportSummary {
	s := ReportSummary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSucceeded:
			s.Succeeded++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeSimulated:
			s.Simulated++
		case OutcomeFailed:
			s.Failed++
		case OutcomeRolledBack:
			s.RolledBack++
		case OutcomeAbortedUpstream:
			s.Aborted++
		}
	}
	return s
}

// Result returns the result for a phase id.
func (r *ExecutionReport) Result(phaseID string) (PhaseResult, bool) {
	for _, res := range r.Results {
		if res.PhaseID == phaseID {
			return res, true
		}
	}
	return PhaseResult{}, false
}

// Failures returns every failed or rolled-back phase in run order.
func (r *ExecutionReport) Failures() []PhaseResult {
	var out []PhaseResult
	for _, res := range r.Results {
		if res.Outcome.IsFailure() {
			out = append(out, res)
		}
	}
	return out
}

// finalStatus derives the run status from the recorded decisions.
func finalStatus(aborted bool, warnings int) RunStatus {
	switch {
	case aborted:
		return RunStatusAborted
	case warnings > 0:
		return RunStatusWarnings
	default:
		return RunStatusSuccess
	}
}
