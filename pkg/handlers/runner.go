// Package handlers implements the local system operations used by
// provisioning phases: commands, packages, services, files and sshd.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCommandTimeout bounds commands without their own timeout.
	DefaultCommandTimeout = 10 * time.Minute

	// DefaultMaxOutput is the number of bytes kept per output stream.
	DefaultMaxOutput = 64 * 1024
)

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the current environment.
	Env []string

	// Stdin is fed to the process when non-nil.
	Stdin []byte

	// Privileged commands are prefixed with sudo when not running as root.
	Privileged bool

	// Timeout overrides the runner default.
	Timeout time.Duration
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ExitError is returned when a command exits non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, msg)
}

// IsExitError reports whether err is a non-zero exit of an otherwise
// successfully started command.
func IsExitError(err error) bool {
	var e *ExitError
	return errors.As(err, &e)
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// CommandRunner runs commands on the local host with a timeout and bounded
// output capture.
type CommandRunner struct {
	timeout   time.Duration
	maxOutput int
	useSudo   bool
	logger    zerolog.Logger
	euid      func() int
}

// RunnerOption configures a CommandRunner.
type RunnerOption func(*CommandRunner)

// WithTimeout sets the default command timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *CommandRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutput sets how many bytes of each stream are kept.
func WithMaxOutput(n int) RunnerOption {
	return func(r *CommandRunner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithSudo enables the sudo prefix for privileged commands.
func WithSudo(enabled bool) RunnerOption {
	return func(r *CommandRunner) {
		r.useSudo = enabled
	}
}

// NewCommandRunner creates a local command runner.
func NewCommandRunner(logger zerolog.Logger, opts ...RunnerOption) *CommandRunner {
	r := &CommandRunner{
		timeout:   DefaultCommandTimeout,
		maxOutput: DefaultMaxOutput,
		useSudo:   true,
		logger:    logger,
		euid:      os.Geteuid,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd. A non-zero exit returns both the result and an *ExitError.
func (r *CommandRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := c.Name, c.Args
	if c.Privileged && r.useSudo && r.euid() != 0 {
		name, args = "sudo", append([]string{c.Name}, c.Args...)
	}

	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	stdout := newTailBuffer(r.maxOutput)
	stderr := newTailBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug().Str("command", c.String()).Dur("timeout", timeout).Msg("Executing command")

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s timed out after %s: %w", c.String(), timeout, context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", c.String(), ctx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug().
				Str("command", c.String()).
				Int("exit_code", result.ExitCode).
				Msg("Command exited non-zero")
			return result, &ExitError{Command: c.String(), ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		return nil, fmt.Errorf("failed to execute %s: %w", c.String(), err)
	}

	return result, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
