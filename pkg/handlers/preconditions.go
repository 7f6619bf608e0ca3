package handlers

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// Precondition is one environment check result.
type Precondition struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// HasCommand reports whether name is on PATH.
func HasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// IsRoot reports whether the process runs as root.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// EnvironmentCheck collects the preconditions for a provisioning run.
type EnvironmentCheck struct {
	Commands    []string
	NetworkAddr string
	Timeout     time.Duration

	lookPath func(string) (string, error)
	isRoot   func() bool
	dial     func(ctx context.Context, addr string, timeout time.Duration) bool
}

// NewEnvironmentCheck creates a check for the given commands and network target.
func NewEnvironmentCheck(commands []string, networkAddr string) *EnvironmentCheck {
	return &EnvironmentCheck{
		Commands:    commands,
		NetworkAddr: networkAddr,
		Timeout:     3 * time.Second,
		lookPath:    exec.LookPath,
		isRoot:      IsRoot,
		dial:        HasNetwork,
	}
}

// Run evaluates every precondition. Sudo counts as privileged access when
// the process is not root.
func (c *EnvironmentCheck) Run(ctx context.Context) []Precondition {
	var out []Precondition

	for _, name := range c.Commands {
		path, err := c.lookPath(name)
		p := Precondition{Name: "command:" + name, OK: err == nil, Detail: path}
		if err != nil {
			p.Detail = "not found in PATH"
		}
		out = append(out, p)
	}

	root := c.isRoot()
	priv := Precondition{Name: "privileges", OK: root, Detail: "running as root"}
	if !root {
		_, err := c.lookPath("sudo")
		priv.OK = err == nil
		priv.Detail = "sudo available"
		if err != nil {
			priv.Detail = "not root and sudo not found"
		}
	}
	out = append(out, priv)

	if c.NetworkAddr != "" {
		ok := c.dial(ctx, c.NetworkAddr, c.Timeout)
		p := Precondition{Name: "network", OK: ok, Detail: c.NetworkAddr}
		out = append(out, p)
	}

	return out
}

// AllOK reports whether every precondition passed.
func AllOK(results []Precondition) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}
