package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Files reads and writes local files, falling back to privileged commands
// for paths the current user cannot write.
type Files struct {
	runner  Runner
	useSudo bool
}

// NewFiles creates a file helper. When useSudo is set, writes go through
// `tee` and copies through `cp` run as privileged commands.
func NewFiles(runner Runner, useSudo bool) *Files {
	return &Files{runner: runner, useSudo: useSudo && runner != nil}
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read returns the file content.
func (f *Files) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Write replaces the content of path.
func (f *Files) Write(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if !f.useSudo {
		if err := os.WriteFile(path, data, mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	if _, err := f.runner.Run(ctx, Command{
		Name:       "tee",
		Args:       []string{path},
		Stdin:      data,
		Privileged: true,
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := f.runner.Run(ctx, Command{
		Name:       "chmod",
		Args:       []string{strconv.FormatUint(uint64(mode.Perm()), 8), path},
		Privileged: true,
	}); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

// Copy copies src to dst preserving the mode.
func (f *Files) Copy(ctx context.Context, src, dst string) error {
	if f.useSudo {
		if _, err := f.runner.Run(ctx, Command{
			Name:       "cp",
			Args:       []string{"-p", src, dst},
			Privileged: true,
		}); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		return nil
	}
	return CopyFile(src, dst)
}

// CopyFile copies src to dst preserving the mode.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// EnsureDir creates dir and its parents for the current user.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
