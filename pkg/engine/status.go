package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Criticality determines how a phase failure affects the rest of the run.
type Criticality string

const (
	// CriticalityCritical aborts the run when the phase fails.
	CriticalityCritical Criticality = "critical"

	// CriticalityAdvisory records a warning and lets the run continue.
	CriticalityAdvisory Criticality = "advisory"
)

// Validate checks if the criticality is valid.
func (c Criticality) Validate() error {
	switch c {
	case CriticalityCritical, CriticalityAdvisory:
		return nil
	default:
		return fmt.Errorf("invalid criticality: %s", c)
	}
}

// ParseCriticality converts a string to a Criticality.
func ParseCriticality(s string) (Criticality, error) {
	c := Criticality(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Validate()
}

// Outcome is the recorded result of a single phase.
type Outcome string

const (
	// OutcomeSucceeded indicates Apply completed without error.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeSkipped indicates the phase was already satisfied.
	OutcomeSkipped Outcome = "skipped-idempotent"

	// OutcomeSimulated indicates the phase would have run in a dry run.
	OutcomeSimulated Outcome = "simulated"

	// OutcomeFailed indicates Apply failed and nothing was rolled back.
	OutcomeFailed Outcome = "failed"

	// OutcomeRolledBack indicates Apply failed and its rollback was invoked.
	OutcomeRolledBack Outcome = "rolled-back"

	// OutcomeAbortedUpstream indicates the phase never ran because an earlier
	// critical phase failed or the run was interrupted.
	OutcomeAbortedUpstream Outcome = "aborted-upstream"
)

// IsFailure returns true if the phase failed, whether or not it was rolled back.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeRolledBack
}

// IsExecuted returns true if Apply was actually invoked.
func (o Outcome) IsExecuted() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed || o == OutcomeRolledBack
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeSucceeded, OutcomeSkipped, OutcomeSimulated,
		OutcomeFailed, OutcomeRolledBack, OutcomeAbortedUpstream:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// Decision is what the executor does after a phase completes.
type Decision string

const (
	// DecisionContinue proceeds to the next phase.
	DecisionContinue Decision = "continue"

	// DecisionAbort stops the run and marks later phases aborted-upstream.
	DecisionAbort Decision = "abort"

	// DecisionRecordWarning records a warning and proceeds.
	DecisionRecordWarning Decision = "record-warning"
)

// Decide maps a phase outcome and its criticality to the next step.
func Decide(outcome Outcome, criticality Criticality) Decision {
	if !outcome.IsFailure() {
		return DecisionContinue
	}
	if criticality == CriticalityAdvisory {
		return DecisionRecordWarning
	}
	return DecisionAbort
}

// RunStatus represents the overall status of a provisioning run.
type RunStatus string

const (
	// RunStatusSuccess indicates every phase succeeded, was skipped or simulated.
	RunStatusSuccess RunStatus = "success"

	// RunStatusWarnings indicates the run finished but advisory phases failed.
	RunStatusWarnings RunStatus = "completed-with-warnings"

	// RunStatusAborted indicates a critical failure or an interrupt stopped the run.
	RunStatusAborted RunStatus = "aborted"
)

// IsSuccessful returns true if the run was not aborted.
func (s RunStatus) IsSuccessful() bool {
	return s == RunStatusSuccess || s == RunStatusWarnings
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSuccess, RunStatusWarnings, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := RunStatus(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	outcome := Outcome(str)
	if err := outcome.Validate(); err != nil {
		return err
	}
	*o = outcome
	return nil
}
