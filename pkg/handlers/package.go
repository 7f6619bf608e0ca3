package handlers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/unifikation/unify/pkg/catalog"
)

// indexPaths are the package index locations used to judge freshness.
var indexPaths = map[catalog.Manager]string{
	catalog.ManagerApt:    "/var/lib/apt/lists",
	catalog.ManagerPacman: "/var/lib/pacman/sync",
	catalog.ManagerApk:    "/var/cache/apk",
}

// managerBinaries maps each manager to the binary used for detection.
var managerBinaries = map[catalog.Manager]string{
	catalog.ManagerApt:    "apt-get",
	catalog.ManagerPacman: "pacman",
	catalog.ManagerApk:    "apk",
}

// DetectManager returns the first supported package manager found on PATH.
// A nil lookPath uses exec.LookPath.
func DetectManager(lookPath func(string) (string, error)) (catalog.Manager, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, m := range catalog.Managers() {
		if _, err := lookPath(managerBinaries[m]); err == nil {
			return m, nil
		}
	}
	return "", fmt.Errorf("no supported package manager found (apt, pacman, apk)")
}

// PackageManager runs native package manager commands.
type PackageManager struct {
	manager   catalog.Manager
	runner    Runner
	indexPath string
}

// NewPackageManager creates a package manager wrapper.
func NewPackageManager(m catalog.Manager, runner Runner) *PackageManager {
	return &PackageManager{
		manager:   m,
		runner:    runner,
		indexPath: indexPaths[m],
	}
}

// WithIndexPath overrides the directory used for index freshness.
func (p *PackageManager) WithIndexPath(path string) *PackageManager {
	p.indexPath = path
	return p
}

// Manager returns the managed package manager kind.
func (p *PackageManager) Manager() catalog.Manager {
	return p.manager
}

// Update refreshes the package index.
func (p *PackageManager) Update(ctx context.Context) error {
	var cmd Command
	switch p.manager {
	case catalog.ManagerApt:
		cmd = Command{Name: "apt-get", Args: []string{"update"}}
	case catalog.ManagerPacman:
		cmd = Command{Name: "pacman", Args: []string{"-Sy", "--noconfirm"}}
	case catalog.ManagerApk:
		cmd = Command{Name: "apk", Args: []string{"update"}}
	default:
		return fmt.Errorf("unsupported package manager: %s", p.manager)
	}
	cmd.Privileged = true

	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to update package index: %w", err)
	}
	return nil
}

// Install installs names in one transaction.
func (p *PackageManager) Install(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}

	var cmd Command
	switch p.manager {
	case catalog.ManagerApt:
		cmd = Command{
			Name: "apt-get",
			Args: append([]string{"install", "-y", "--no-install-recommends"}, names...),
			Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
		}
	case catalog.ManagerPacman:
		cmd = Command{Name: "pacman", Args: append([]string{"-S", "--needed", "--noconfirm"}, names...)}
	case catalog.ManagerApk:
		cmd = Command{Name: "apk", Args: append([]string{"add", "--no-progress"}, names...)}
	default:
		return fmt.Errorf("unsupported package manager: %s", p.manager)
	}
	cmd.Privileged = true

	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to install %s: %w", strings.Join(names, " "), err)
	}
	return nil
}

// Installed reports whether a native package is installed.
func (p *PackageManager) Installed(ctx context.Context, name string) (bool, error) {
	var cmd Command
	switch p.manager {
	case catalog.ManagerApt:
		cmd = Command{Name: "dpkg-query", Args: []string{"-W", "-f=${Status}", name}}
	case catalog.ManagerPacman:
		cmd = Command{Name: "pacman", Args: []string{"-Q", name}}
	case catalog.ManagerApk:
		cmd = Command{Name: "apk", Args: []string{"info", "-e", name}}
	default:
		return false, fmt.Errorf("unsupported package manager: %s", p.manager)
	}

	result, err := p.runner.Run(ctx, cmd)
	if err != nil {
		if IsExitError(err) {
			return false, nil
		}
		return false, err
	}

	if p.manager == catalog.ManagerApt {
		return strings.Contains(result.Stdout, "install ok installed"), nil
	}
	return true, nil
}

// Missing returns the subset of names that are not installed, in order.
func (p *PackageManager) Missing(ctx context.Context, names []string) ([]string, error) {
	var missing []string
	for _, name := range names {
		ok, err := p.Installed(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", name, err)
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// IndexAge returns how long ago the package index was refreshed.
func (p *PackageManager) IndexAge() (time.Duration, error) {
	if p.indexPath == "" {
		return 0, fmt.Errorf("no index path for %s", p.manager)
	}
	info, err := os.Stat(p.indexPath)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}

// IndexFresh reports whether the package index was refreshed within maxAge.
// A missing index counts as stale.
func (p *PackageManager) IndexFresh(maxAge time.Duration) bool {
	age, err := p.IndexAge()
	if err != nil {
		return false
	}
	return age <= maxAge
}
