// Package engine runs provisioning phases in order and records what happened
// to each of them.
//
// # Overview
//
// A run is an ordered list of phases. The Executor handles them strictly one
// after another:
//
//  1. Check - ask whether the phase's work is already in place
//  2. Apply - do the work when it is not (skipped in dry-run mode)
//  3. Rollback - undo a failed Apply when the phase carries a rollback
//
// Every phase ends with exactly one Outcome:
//
//   - skipped-idempotent: Check reported the work as done
//   - simulated: dry run, Apply was not called
//   - succeeded: Apply returned nil
//   - failed: Apply failed and there was nothing to roll back
//   - rolled-back: Apply failed and Rollback was attempted
//   - aborted-upstream: an earlier critical failure or an interrupt stopped the run
//
// # Criticality
//
// A failed critical phase aborts the run and every later phase is recorded as
// aborted-upstream. A failed advisory phase adds a warning and the run
// continues. The final RunStatus is success, completed-with-warnings or
// aborted.
//
// # Usage
//
//	executor := engine.NewExecutor(logger,
//	    engine.WithApplyTimeout(10*time.Minute),
//	    engine.WithObserver(observer),
//	)
//
//	report := executor.Run(ctx, "workstation", phases, false)
//	fmt.Println(report.Status, report.Summary().Failed)
//
// Cancelling ctx stops the run at the next phase boundary. The phase in
// progress, including its rollback, runs to completion or to its timeout.
//
// # Errors
//
// Handlers classify failures with EngineError (transient, conflict or
// permanent). An Apply error wrapped with Unchanged tells the executor that
// the system was not modified, so no rollback is attempted.
package engine
