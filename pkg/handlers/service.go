package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Services manages systemd units.
type Services struct {
	runner Runner
}

// NewServices creates a systemd helper.
func NewServices(runner Runner) *Services {
	return &Services{runner: runner}
}

// Restart restarts the first of names that systemd accepts. Distributions
// name the OpenSSH unit differently, so callers pass every known alias.
func (s *Services) Restart(ctx context.Context, names ...string) error {
	return s.action(ctx, "restart", names)
}

func (s *Services) action(ctx context.Context, action string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("service name is required")
	}

	var errs []error
	for _, name := range names {
		_, err := s.runner.Run(ctx, Command{
			Name:       "systemctl",
			Args:       []string{action, name},
			Privileged: true,
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		errs = append(errs, err)
	}

	return fmt.Errorf("failed to %s %s: %w", action, strings.Join(names, "/"), errors.Join(errs...))
}
