package handlers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSSHDConfigPath is the standard OpenSSH server configuration file.
const DefaultSSHDConfigPath = "/etc/ssh/sshd_config"

// DefaultSSHPort is the port sshd listens on without a Port directive.
const DefaultSSHPort = 22

// ErrBackupFailed is returned by SetPort when the config could not be backed
// up. The config is left untouched in that case.
var ErrBackupFailed = errors.New("sshd_config backup failed")

var (
	portLine  = regexp.MustCompile(`(?i)^\s*(#\s*)?Port\s+(\d+)\s*(#.*)?$`)
	matchLine = regexp.MustCompile(`(?i)^\s*Match\s`)
)

// SSHDConfig edits the Port directive of an sshd_config file while keeping
// everything else intact.
type SSHDConfig struct {
	path     string
	files    *Files
	original []byte
}

// NewSSHDConfig creates an editor for the config at path.
func NewSSHDConfig(path string, files *Files) *SSHDConfig {
	if path == "" {
		path = DefaultSSHDConfigPath
	}
	return &SSHDConfig{path: path, files: files}
}

// Path returns the config file path.
func (s *SSHDConfig) Path() string {
	return s.path
}

// BackupPath returns where SetPort stores the previous config.
func (s *SSHDConfig) BackupPath() string {
	return s.path + ".bak"
}

// Port returns the first active Port value, or DefaultSSHPort when none is set.
func (s *SSHDConfig) Port() (int, error) {
	data, err := s.files.Read(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read sshd_config: %w", err)
	}
	port, ok := activePort(data)
	if !ok {
		return DefaultSSHPort, nil
	}
	return port, nil
}

// HasPort reports whether an active Port directive with the given value exists.
func (s *SSHDConfig) HasPort(port int) (bool, error) {
	data, err := s.files.Read(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to read sshd_config: %w", err)
	}

	for _, line := range globalLines(data) {
		m := portLine.FindStringSubmatch(line)
		if m == nil || m[1] != "" {
			continue
		}
		if p, _ := strconv.Atoi(m[2]); p == port {
			return true, nil
		}
	}
	return false, nil
}

// SetPort rewrites the config so sshd listens on port and returns the port
// that was in effect before. The previous content is kept in memory and in
// BackupPath for Restore.
func (s *SSHDConfig) SetPort(ctx context.Context, port int) (int, error) {
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid ssh port: %d", port)
	}

	data, err := s.files.Read(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read sshd_config: %w", err)
	}

	previous, ok := activePort(data)
	if !ok {
		previous = DefaultSSHPort
	}

	if err := s.files.Copy(ctx, s.path, s.BackupPath()); err != nil {
		return previous, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	s.original = data

	if err := s.files.Write(ctx, s.path, rewritePort(data, port), 0o644); err != nil {
		return previous, fmt.Errorf("failed to write sshd_config: %w", err)
	}

	return previous, nil
}

// Restore puts back the content saved by the last SetPort, falling back to
// the backup file when this editor did not make the change.
func (s *SSHDConfig) Restore(ctx context.Context) error {
	if s.original != nil {
		if err := s.files.Write(ctx, s.path, s.original, 0o644); err != nil {
			return fmt.Errorf("failed to restore sshd_config: %w", err)
		}
		return nil
	}

	if !Exists(s.BackupPath()) {
		return fmt.Errorf("no sshd_config backup at %s", s.BackupPath())
	}
	if err := s.files.Copy(ctx, s.BackupPath(), s.path); err != nil {
		return fmt.Errorf("failed to restore sshd_config: %w", err)
	}
	return nil
}

// Validate runs `sshd -t` against the config.
func (s *SSHDConfig) Validate(ctx context.Context, runner Runner) error {
	if _, err := runner.Run(ctx, Command{
		Name:       "sshd",
		Args:       []string{"-t", "-f", s.path},
		Privileged: true,
	}); err != nil {
		return fmt.Errorf("sshd -t failed: %w", err)
	}
	return nil
}

// globalLines returns the lines before the first Match block. Directives
// after it only apply to matching connections.
func globalLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if matchLine.MatchString(scanner.Text()) {
			break
		}
		lines = append(lines, scanner.Text())
	}
	return lines
}

func activePort(data []byte) (int, bool) {
	for _, line := range globalLines(data) {
		m := portLine.FindStringSubmatch(line)
		if m == nil || m[1] != "" {
			continue
		}
		if p, err := strconv.Atoi(m[2]); err == nil {
			return p, true
		}
	}
	return 0, false
}

// rewritePort replaces the first active Port line, or the first commented
// one when none is active. Otherwise the directive is inserted before the
// first Match block, or appended when there is none.
func rewritePort(data []byte, port int) []byte {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	directive := fmt.Sprintf("Port %d", port)

	replace, insert := -1, len(lines)
	for i, line := range lines {
		if matchLine.MatchString(line) {
			insert = i
			break
		}
		m := portLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[1] == "" {
			replace = i
			break
		}
		if replace < 0 {
			replace = i
		}
	}

	switch {
	case replace >= 0:
		lines[replace] = directive
	case insert < len(lines):
		lines = append(lines[:insert], append([]string{directive, ""}, lines[insert:]...)...)
	default:
		lines = append(lines, directive)
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}
