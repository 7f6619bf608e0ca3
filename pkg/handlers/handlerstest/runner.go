// Package handlerstest provides a scripted Runner for tests.
package handlerstest

import (
	"context"
	"strings"
	"sync"

	"github.com/unifikation/unify/pkg/handlers"
)

// Func produces the outcome of a matched command.
type Func func(cmd handlers.Command) (*handlers.Result, error)

type rule struct {
	prefix    string
	fn        Func
	remaining int
}

// Runner records every command and answers from registered rules. Rules
// match on the command line prefix; the most recently added match wins.
// Unmatched commands succeed with empty output.
type Runner struct {
	mu    sync.Mutex
	calls []handlers.Command
	rules []*rule
}

// NewRunner creates an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Do registers fn for commands starting with prefix.
func (r *Runner) Do(prefix string, fn Func) *Runner {
	return r.add(prefix, fn, -1)
}

// DoTimes registers fn for the next n matching commands.
func (r *Runner) DoTimes(prefix string, n int, fn Func) *Runner {
	return r.add(prefix, fn, n)
}

// Succeed answers matching commands with stdout.
func (r *Runner) Succeed(prefix, stdout string) *Runner {
	return r.Do(prefix, func(cmd handlers.Command) (*handlers.Result, error) {
		return &handlers.Result{Stdout: stdout}, nil
	})
}

// Fail answers matching commands with a non-zero exit.
func (r *Runner) Fail(prefix string, exitCode int, stderr string) *Runner {
	return r.Do(prefix, exitFunc(exitCode, stderr))
}

// FailTimes fails the next n matching commands, then falls through to
// earlier rules.
func (r *Runner) FailTimes(prefix string, n, exitCode int, stderr string) *Runner {
	return r.DoTimes(prefix, n, exitFunc(exitCode, stderr))
}

func exitFunc(exitCode int, stderr string) Func {
	return func(cmd handlers.Command) (*handlers.Result, error) {
		res := &handlers.Result{Stderr: stderr, ExitCode: exitCode}
		return res, &handlers.ExitError{Command: cmd.String(), ExitCode: exitCode, Stderr: stderr}
	}
}

func (r *Runner) add(prefix string, fn Func, n int) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{prefix: prefix, fn: fn, remaining: n})
	return r
}

// Run implements handlers.Runner.
func (r *Runner) Run(ctx context.Context, cmd handlers.Command) (*handlers.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var fn Func
	line := cmd.String()
	for i := len(r.rules) - 1; i >= 0; i-- {
		rl := r.rules[i]
		if rl.remaining == 0 || !strings.HasPrefix(line, rl.prefix) {
			continue
		}
		if rl.remaining > 0 {
			rl.remaining--
		}
		fn = rl.fn
		break
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return &handlers.Result{}, nil
	}
	return fn(cmd)
}

// Calls returns the recorded commands.
func (r *Runner) Calls() []handlers.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]handlers.Command(nil), r.calls...)
}

// Lines returns the recorded command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

// Count returns how many recorded commands start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
