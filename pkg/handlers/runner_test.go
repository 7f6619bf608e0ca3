package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(opts ...RunnerOption) *CommandRunner {
	return NewCommandRunner(zerolog.Nop(), opts...)
}

func TestCommandRunner_CapturesOutput(t *testing.T) {
	t.Parallel()

	res, err := newTestRunner().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.Truncated)
}

func TestCommandRunner_NonZeroExit(t *testing.T) {
	t.Parallel()

	res, err := newTestRunner().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo broken >&2; exit 3"},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.True(t, IsExitError(err))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Contains(t, exitErr.Error(), "broken")
}

func TestCommandRunner_Timeout(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := newTestRunner().Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandRunner_TruncatesOutput(t *testing.T) {
	t.Parallel()

	res, err := newTestRunner(WithMaxOutput(16)).Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf '0123456789abcdefghijklmnopqrstuvwxyz'"},
	})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, "klmnopqrstuvwxyz", res.Stdout)
}

func TestCommandRunner_Stdin(t *testing.T) {
	t.Parallel()

	res, err := newTestRunner().Run(context.Background(), Command{
		Name:  "cat",
		Stdin: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
}

func TestCommandRunner_RequiresName(t *testing.T) {
	t.Parallel()

	_, err := newTestRunner().Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.truncated)

	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())
	assert.True(t, b.truncated)
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "apt-get install -y git", Command{Name: "apt-get", Args: []string{"install", "-y", "git"}}.String())
	assert.Equal(t, "true", Command{Name: "true"}.String())
}

func TestEnvironmentCheck(t *testing.T) {
	t.Parallel()

	check := NewEnvironmentCheck([]string{"git", "flatpak"}, "example.org:443")
	check.lookPath = func(name string) (string, error) {
		if name == "git" || name == "sudo" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	check.isRoot = func() bool { return false }
	check.dial = func(ctx context.Context, addr string, timeout time.Duration) bool { return true }

	results := check.Run(context.Background())
	require.Len(t, results, 4)

	byName := map[string]Precondition{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["command:git"].OK)
	assert.False(t, byName["command:flatpak"].OK)
	assert.True(t, byName["privileges"].OK)
	assert.True(t, strings.Contains(byName["privileges"].Detail, "sudo"))
	assert.True(t, byName["network"].OK)
	assert.False(t, AllOK(results))
}
