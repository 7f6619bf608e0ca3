package engine

import (
	"context"
	"fmt"
	"time"
)

// CheckFunc reports whether a phase's desired state is already in place.
// It must not modify the system.
type CheckFunc func(ctx context.Context) (bool, error)

// ActionFunc performs or undoes a phase's work.
type ActionFunc func(ctx context.Context) error

// Phase is one unit of provisioning work.
type Phase struct {
	// ID is the unique phase identifier within a run.
	ID string `json:"id"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Criticality decides whether a failure aborts the run.
	Criticality Criticality `json:"criticality"`

	// Estimate is the expected duration, used for plan display only.
	Estimate time.Duration `json:"estimate"`

	// Timeout bounds Apply. Zero uses the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Irreversible marks phases whose changes cannot be undone and that
	// therefore carry no Rollback.
	Irreversible bool `json:"irreversible,omitempty"`

	Check    CheckFunc  `json:"-"`
	Apply    ActionFunc `json:"-"`
	Rollback ActionFunc `json:"-"`
}

// HasRollback reports whether the phase can undo a failed Apply.
func (p *Phase) HasRollback() bool {
	return p.Rollback != nil
}

// Validate checks the phase definition.
func (p *Phase) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("phase id is required")
	}
	if p.Apply == nil {
		return fmt.Errorf("phase %s: apply is required", p.ID)
	}
	if err := p.Criticality.Validate(); err != nil {
		return fmt.Errorf("phase %s: %w", p.ID, err)
	}
	return nil
}

// ValidatePhases checks every phase and rejects duplicate ids.
func ValidatePhases(phases []Phase) error {
	seen := make(map[string]bool, len(phases))
	for i := range phases {
		if err := phases[i].Validate(); err != nil {
			return err
		}
		if seen[phases[i].ID] {
			return fmt.Errorf("duplicate phase id: %s", phases[i].ID)
		}
		seen[phases[i].ID] = true
	}
	return nil
}

// TotalEstimate sums the estimates of all phases.
func TotalEstimate(phases []Phase) time.Duration {
	var total time.Duration
	for i := range phases {
		total += phases[i].Estimate
	}
	return total
}
