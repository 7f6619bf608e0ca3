package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultApplyTimeout bounds Apply for phases without their own timeout.
	DefaultApplyTimeout = 30 * time.Minute

	// DefaultCheckTimeout bounds Check.
	DefaultCheckTimeout = 2 * time.Minute

	// DefaultRollbackTimeout bounds Rollback.
	DefaultRollbackTimeout = 5 * time.Minute
)

// Observer receives execution callbacks. RunStarted and PhaseStarted may
// return a derived context, for example one carrying a trace span.
type Observer interface {
	RunStarted(ctx context.Context, report *ExecutionReport) context.Context
	PhaseStarted(ctx context.Context, runID string, phase *Phase) context.Context
	PhaseFinished(ctx context.Context, runID string, result PhaseResult)
	RunFinished(ctx context.Context, report *ExecutionReport)
}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

// RunStarted implements Observer.
func (o Observers) RunStarted(ctx context.Context, report *ExecutionReport) context.Context {
	for _, obs := range o {
		ctx = obs.RunStarted(ctx, report)
	}
	return ctx
}

// PhaseStarted implements Observer.
func (o Observers) PhaseStarted(ctx context.Context, runID string, phase *Phase) context.Context {
	for _, obs := range o {
		ctx = obs.PhaseStarted(ctx, runID, phase)
	}
	return ctx
}

// PhaseFinished implements Observer.
func (o Observers) PhaseFinished(ctx context.Context, runID string, result PhaseResult) {
	for _, obs := range o {
		obs.PhaseFinished(ctx, runID, result)
	}
}

// RunFinished implements Observer.
func (o Observers) RunFinished(ctx context.Context, report *ExecutionReport) {
	for _, obs := range o {
		obs.RunFinished(ctx, report)
	}
}

// Executor runs phases strictly one after another.
type Executor struct {
	logger          zerolog.Logger
	observer        Observer
	applyTimeout    time.Duration
	checkTimeout    time.Duration
	rollbackTimeout time.Duration
	now             func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver registers an observer for phase and run callbacks.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithApplyTimeout sets the default Apply timeout.
func WithApplyTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.applyTimeout = d
		}
	}
}

// WithCheckTimeout sets the Check timeout.
func WithCheckTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.checkTimeout = d
		}
	}
}

// WithRollbackTimeout sets the Rollback timeout.
func WithRollbackTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.rollbackTimeout = d
		}
	}
}

// NewExecutor creates a new sequential executor.
func NewExecutor(logger zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:          logger,
		observer:        Observers(nil),
		applyTimeout:    DefaultApplyTimeout,
		checkTimeout:    DefaultCheckTimeout,
		rollbackTimeout: DefaultRollbackTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes phases in order and returns the report. It never returns a
// nil report. Cancelling ctx stops the run at the next phase boundary; the
// phase in progress is not cancelled.
func (e *Executor) Run(ctx context.Context, scenario string, phases []Phase, dryRun bool) *ExecutionReport {
	report := &ExecutionReport{
		RunID:     uuid.New().String(),
		Scenario:  scenario,
		DryRun:    dryRun,
		Results:   make([]PhaseResult, 0, len(phases)),
		StartedAt: e.now(),
	}

	logger := e.logger.With().
		Str("run_id", report.RunID).
		Str("scenario", scenario).
		Bool("dry_run", dryRun).
		Logger()
	logger.Info().Int("phases", len(phases)).Msg("Run started")
	ctx = e.observer.RunStarted(ctx, report)

	aborted := false
	advisoryFailures := 0

	for i := range phases {
		phase := &phases[i]

		if !aborted && ctx.Err() != nil {
			aborted = true
			report.Interrupted = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("run interrupted before phase %s", phase.ID))
			logger.Warn().Str("phase", phase.ID).Msg("Run interrupted, skipping remaining phases")
		}

		if aborted {
			result := e.abortedResult(phase)
			report.Results = append(report.Results, result)
			e.observer.PhaseFinished(ctx, report.RunID, result)
			continue
		}

		result := e.runPhase(ctx, report.RunID, phase, dryRun, logger)

		switch result.Decision {
		case DecisionAbort:
			aborted = true
			logger.Error().
				Str("phase", phase.ID).
				Str("outcome", string(result.Outcome)).
				Msg("Critical phase failed, aborting run")
		case DecisionRecordWarning:
			advisoryFailures++
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("advisory phase %s %s: %s", phase.ID, result.Outcome, result.Error))
		}
		if result.RollbackError != "" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("rollback of %s failed: %s", phase.ID, result.RollbackError))
		}

		report.Results = append(report.Results, result)

		if !aborted && ctx.Err() != nil {
			aborted = true
			report.Interrupted = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("run interrupted during phase %s", phase.ID))
			logger.Warn().Str("phase", phase.ID).Msg("Run interrupted, skipping remaining phases")
		}
	}

	report.Status = finalStatus(aborted, advisoryFailures)
	report.CompletedAt = e.now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)

	logger.Info().
		Str("status", string(report.Status)).
		Dur("duration", report.Duration).
		Int("warnings", len(report.Warnings)).
		Msg("Run finished")

	e.observer.RunFinished(ctx, report)
	return report
}

// runPhase evaluates one phase: check, then simulate or apply, then roll
// back if needed.
func (e *Executor) runPhase(ctx context.Context, runID string, phase *Phase, dryRun bool, logger zerolog.Logger) (result PhaseResult) {
	result = PhaseResult{
		PhaseID:     phase.ID,
		Description: phase.Description,
		Criticality: phase.Criticality,
		StartedAt:   e.now(),
	}

	ctx = e.observer.PhaseStarted(ctx, runID, phase)
	plog := logger.With().Str("phase", phase.ID).Str("criticality", string(phase.Criticality)).Logger()
	plog.Debug().Msg("Phase started")

	defer func() {
		result.CompletedAt = e.now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		result.Decision = Decide(result.Outcome, phase.Criticality)
		e.observer.PhaseFinished(ctx, runID, result)
	}()

	if err := phase.Validate(); err != nil {
		engErr := NewPermanentError("invalid phase", err).
			WithPhase(phase.ID).
			WithCode(ErrCodeValidation)
		result.Outcome = OutcomeFailed
		result.Err = engErr
		result.Error = engErr.Error()
		plog.Error().Err(err).Msg("Invalid phase definition")
		return result
	}

	satisfied, checkErr := e.check(ctx, phase)
	if checkErr != nil {
		satisfied = false
		engErr := NewTransientError("satisfaction check failed", checkErr).
			WithPhase(phase.ID).
			WithOperation("check").
			WithCode(ErrCodePhaseCheck)
		result.CheckError = engErr.Error()
		plog.Warn().Err(checkErr).Msg("Check failed, treating phase as not satisfied")
	}

	if satisfied {
		result.Outcome = OutcomeSkipped
		plog.Info().Msg("Phase already satisfied")
		return result
	}

	if dryRun {
		result.Outcome = OutcomeSimulated
		plog.Info().Msg("Dry run, phase simulated")
		return result
	}

	applyErr := e.apply(ctx, phase)
	if applyErr == nil {
		result.Outcome = OutcomeSucceeded
		plog.Info().Msg("Phase succeeded")
		return result
	}

	engErr := classifyApplyError(phase.ID, applyErr)
	result.Err = engErr
	result.Error = engErr.Error()
	plog.Error().Err(applyErr).Msg("Phase apply failed")

	if phase.HasRollback() && !IsUnchanged(applyErr) {
		if rbErr := e.rollback(ctx, phase); rbErr != nil {
			rb := NewPermanentError("rollback failed", rbErr).
				WithPhase(phase.ID).
				WithOperation("rollback").
				WithCode(ErrCodeRollback)
			result.RollbackError = rb.Error()
			plog.Error().Err(rbErr).Msg("Rollback failed")
		} else {
			plog.Info().Msg("Phase rolled back")
		}
		result.Outcome = OutcomeRolledBack
		return result
	}

	result.Outcome = OutcomeFailed
	result.Irreversible = phase.Irreversible && !phase.HasRollback()
	return result
}

func (e *Executor) abortedResult(phase *Phase) PhaseResult {
	now := e.now()
	return PhaseResult{
		PhaseID:     phase.ID,
		Description: phase.Description,
		Criticality: phase.Criticality,
		Outcome:     OutcomeAbortedUpstream,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// check and apply keep running when ctx is cancelled; an interrupt takes
// effect at the next phase boundary.
func (e *Executor) check(ctx context.Context, phase *Phase) (satisfied bool, err error) {
	if phase.Check == nil {
		return false, nil
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.checkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			satisfied = false
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()

	return phase.Check(checkCtx)
}

func (e *Executor) apply(ctx context.Context, phase *Phase) (err error) {
	timeout := phase.Timeout
	if timeout <= 0 {
		timeout = e.applyTimeout
	}

	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("apply panicked: %v", r)
		}
	}()

	return phase.Apply(applyCtx)
}

func (e *Executor) rollback(ctx context.Context, phase *Phase) (err error) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.rollbackTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback panicked: %v", r)
		}
	}()

	return phase.Rollback(rbCtx)
}

func classifyApplyError(phaseID string, err error) *EngineError {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		if engErr.Phase == "" {
			engErr.Phase = phaseID
		}
		if engErr.Operation == "" {
			engErr.Operation = "apply"
		}
		return engErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransientError("phase timed out", err).
			WithPhase(phaseID).
			WithOperation("apply").
			WithCode(ErrCodeTimeout)
	case errors.Is(err, context.Canceled):
		return NewTransientError("phase interrupted", err).
			WithPhase(phaseID).
			WithOperation("apply").
			WithCode(ErrCodeInterrupted)
	default:
		return NewPermanentError("phase apply failed", err).
			WithPhase(phaseID).
			WithOperation("apply").
			WithCode(ErrCodePhaseApply)
	}
}
