package handlers

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of network-bound commands.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at two seconds.
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        3,
	InitialInterval: 2 * time.Second,
	MaxInterval:     20 * time.Second,
}

func (p RetryPolicy) do(ctx context.Context, op func() error) error {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

// Git clones and updates repositories.
type Git struct {
	runner Runner
	retry  RetryPolicy
}

// NewGit creates a git helper.
func NewGit(runner Runner, retry RetryPolicy) *Git {
	return &Git{runner: runner, retry: retry}
}

// IsRepo reports whether dir holds a git checkout.
func IsRepo(dir string) bool {
	return Exists(filepath.Join(dir, ".git"))
}

// CloneOrPull clones url into dir, or fast-forwards an existing checkout.
func (g *Git) CloneOrPull(ctx context.Context, url, dir string) error {
	if IsRepo(dir) {
		return g.retry.do(ctx, func() error {
			_, err := g.runner.Run(ctx, Command{Name: "git", Args: []string{"-C", dir, "pull", "--ff-only"}})
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", dir, err)
			}
			return nil
		})
	}

	if err := EnsureDir(filepath.Dir(dir)); err != nil {
		return err
	}

	return g.retry.do(ctx, func() error {
		// A failed clone can leave a partial directory behind.
		if Exists(dir) && !IsRepo(dir) {
			if err := os.RemoveAll(dir); err != nil {
				return backoff.Permanent(err)
			}
		}
		_, err := g.runner.Run(ctx, Command{Name: "git", Args: []string{"clone", "--depth", "1", url, dir}})
		if err != nil {
			return fmt.Errorf("failed to clone %s: %w", url, err)
		}
		return nil
	})
}

// Downloader fetches files over HTTP(S) with curl.
type Downloader struct {
	runner Runner
	retry  RetryPolicy
}

// NewDownloader creates a download helper.
func NewDownloader(runner Runner, retry RetryPolicy) *Downloader {
	return &Downloader{runner: runner, retry: retry}
}

// Fetch downloads url to dest and applies mode.
func (d *Downloader) Fetch(ctx context.Context, url, dest string, mode os.FileMode) error {
	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}

	err := d.retry.do(ctx, func() error {
		_, err := d.runner.Run(ctx, Command{
			Name: "curl",
			Args: []string{"-fsSL", "--retry", "0", "-o", dest, url},
		})
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", url, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Chmod(dest, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dest, err)
	}
	return nil
}

// HasNetwork reports whether a TCP connection to addr succeeds within timeout.
func HasNetwork(ctx context.Context, addr string, timeout time.Duration) bool {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
