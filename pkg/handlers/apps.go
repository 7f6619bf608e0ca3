package handlers

import (
	"context"
	"fmt"
	"strings"
)

// Flatpak manages flatpak remotes and applications.
type Flatpak struct {
	runner Runner

	// Helper is an optional installer script (dupot easy-flatpak) invoked
	// as `<Helper> install <app>`. Empty uses flatpak directly.
	Helper string
}

// NewFlatpak creates a flatpak helper.
func NewFlatpak(runner Runner, helper string) *Flatpak {
	return &Flatpak{runner: runner, Helper: helper}
}

// HasRemote reports whether a remote with name is configured.
func (f *Flatpak) HasRemote(ctx context.Context, name string) (bool, error) {
	result, err := f.runner.Run(ctx, Command{Name: "flatpak", Args: []string{"remotes", "--columns=name"}})
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// AddRemote adds a system-wide remote.
func (f *Flatpak) AddRemote(ctx context.Context, name, url string) error {
	if _, err := f.runner.Run(ctx, Command{
		Name:       "flatpak",
		Args:       []string{"remote-add", "--if-not-exists", name, url},
		Privileged: true,
	}); err != nil {
		return fmt.Errorf("failed to add flatpak remote %s: %w", name, err)
	}
	return nil
}

// Installed reports whether app is installed. Short helper aliases such as
// "code" match the last segment of the application id.
func (f *Flatpak) Installed(ctx context.Context, app string) (bool, error) {
	result, err := f.runner.Run(ctx, Command{Name: "flatpak", Args: []string{"list", "--app", "--columns=application"}})
	if err != nil {
		return false, err
	}

	want := strings.ToLower(app)
	for _, line := range strings.Split(result.Stdout, "\n") {
		id := strings.ToLower(strings.TrimSpace(line))
		if id == "" {
			continue
		}
		if id == want || strings.HasSuffix(id, "."+want) {
			return true, nil
		}
	}
	return false, nil
}

// Install installs app from flathub or through the helper script.
func (f *Flatpak) Install(ctx context.Context, app string) error {
	cmd := Command{Name: "flatpak", Args: []string{"install", "-y", "--noninteractive", "flathub", app}}
	if f.Helper != "" {
		cmd = Command{Name: f.Helper, Args: []string{"install", app}}
	}
	if _, err := f.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to install flatpak %s: %w", app, err)
	}
	return nil
}

// Pip manages user-level Python packages.
type Pip struct {
	runner Runner
	binary string
}

// NewPip creates a pip helper. An empty binary uses pip3.
func NewPip(runner Runner, binary string) *Pip {
	if binary == "" {
		binary = "pip3"
	}
	return &Pip{runner: runner, binary: binary}
}

// Installed reports whether pkg is importable metadata-wise.
func (p *Pip) Installed(ctx context.Context, pkg string) (bool, error) {
	_, err := p.runner.Run(ctx, Command{Name: p.binary, Args: []string{"show", pkg}})
	if err != nil {
		if IsExitError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Install installs pkg for the current user.
func (p *Pip) Install(ctx context.Context, pkg string) error {
	if _, err := p.runner.Run(ctx, Command{Name: p.binary, Args: []string{"install", "--user", pkg}}); err != nil {
		return fmt.Errorf("failed to install python package %s: %w", pkg, err)
	}
	return nil
}
