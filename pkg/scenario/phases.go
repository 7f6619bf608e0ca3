package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/engine"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/resolver"
)

// buildPhases returns the ordered phase list for sc with default
// criticalities. Configuration overrides are applied by the caller.
func (o *Orchestrator) buildPhases(sc Scenario, plan resolver.InstallationPlan) []engine.Phase {
	pm := handlers.NewPackageManager(o.manager, o.runner)
	if o.indexPath != "" {
		pm.WithIndexPath(o.indexPath)
	}

	phases := []engine.Phase{o.packageIndexPhase(pm)}
	if !sc.Full {
		return append(phases, o.corePackagesPhase(pm, plan))
	}

	cfg := o.cfg
	helper := ""
	if cfg.Flatpak.Enabled {
		phases = append(phases, o.basePackagesPhase(pm))
		if script := cfg.Flatpak.HelperScript(); script != "" {
			helper = o.path(script)
			phases = append(phases, o.easyFlatpakPhase())
		}
		phases = append(phases, o.flathubPhase())
	}

	if cfg.Docker.Enabled && o.manager == catalog.ManagerApt && planHas(plan, "docker-ce") {
		phases = append(phases, o.dockerRepoPhase(pm))
	}

	phases = append(phases, o.corePackagesPhase(pm, plan))

	if cfg.Shell.Enabled {
		phases = append(phases, o.shellPhase())
	}

	if cfg.Flatpak.Enabled {
		fp := handlers.NewFlatpak(o.runner, helper)
		for _, app := range cfg.Flatpak.Apps {
			phases = append(phases, o.flatpakAppPhase(fp, app))
		}
	}

	if cfg.Micromamba.Enabled {
		phases = append(phases, o.micromambaPhase())
	}

	for _, img := range cfg.AppImages {
		phases = append(phases, o.appImagePhase(img))
	}

	if cfg.SSH.Enabled {
		phases = append(phases, o.sshPortPhase())
	}

	if cfg.Tmux.Enabled {
		phases = append(phases, o.tmuxPhase())
	}

	pip := handlers.NewPip(o.runner, cfg.Pip.Binary)
	for _, pkg := range cfg.Pip.Packages {
		phases = append(phases, o.pipPhase(pip, pkg))
	}

	return phases
}

func planHas(plan resolver.InstallationPlan, id string) bool {
	for _, p := range plan.Packages {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (o *Orchestrator) packageIndexPhase(pm *handlers.PackageManager) engine.Phase {
	validity := o.cfg.IndexValidity
	return engine.Phase{
		ID:          "package-index",
		Description: fmt.Sprintf("Refresh %s package index", o.manager),
		Criticality: engine.CriticalityCritical,
		Estimate:    30 * time.Second,
		Check: func(ctx context.Context) (bool, error) {
			return pm.IndexFresh(validity), nil
		},
		Apply: pm.Update,
	}
}

func (o *Orchestrator) installPhase(id, description string, pm *handlers.PackageManager, names []string, estimate time.Duration) engine.Phase {
	return engine.Phase{
		ID:          id,
		Description: description,
		Criticality: engine.CriticalityCritical,
		Estimate:    estimate,
		Check: func(ctx context.Context) (bool, error) {
			if len(names) == 0 {
				return true, nil
			}
			missing, err := pm.Missing(ctx, names)
			if err != nil {
				return false, err
			}
			return len(missing) == 0, nil
		},
		Apply: func(ctx context.Context) error {
			missing, err := pm.Missing(ctx, names)
			if err != nil {
				missing = names
			}
			return pm.Install(ctx, missing...)
		},
	}
}

func (o *Orchestrator) basePackagesPhase(pm *handlers.PackageManager) engine.Phase {
	return o.installPhase("base-packages", "Install flatpak and git", pm,
		o.nativeNames("flatpak", "git"), time.Minute)
}

func (o *Orchestrator) corePackagesPhase(pm *handlers.PackageManager, plan resolver.InstallationPlan) engine.Phase {
	return o.installPhase("core-packages",
		fmt.Sprintf("Install %d core packages", len(plan.Packages)), pm,
		plan.NativeNames(), plan.EstimatedDuration())
}

func (o *Orchestrator) easyFlatpakPhase() engine.Phase {
	dir := o.path(o.cfg.Flatpak.HelperDir)
	script := o.path(o.cfg.Flatpak.HelperScript())
	git := handlers.NewGit(o.runner, o.retry)

	return engine.Phase{
		ID:          "easy-flatpak",
		Description: "Clone or update the easy-flatpak helper",
		Criticality: engine.CriticalityCritical,
		Estimate:    30 * time.Second,
		Check: func(ctx context.Context) (bool, error) {
			return handlers.IsRepo(dir) && handlers.Exists(script), nil
		},
		Apply: func(ctx context.Context) error {
			if err := git.CloneOrPull(ctx, o.cfg.Flatpak.HelperRepo, dir); err != nil {
				return err
			}
			if !handlers.Exists(script) {
				return fmt.Errorf("helper script %s missing after checkout", script)
			}
			return nil
		},
	}
}

func (o *Orchestrator) flathubPhase() engine.Phase {
	fp := handlers.NewFlatpak(o.runner, "")
	remote := o.cfg.Flatpak.Remote

	return engine.Phase{
		ID:          "flathub-remote",
		Description: fmt.Sprintf("Add the %s flatpak remote", remote),
		Criticality: engine.CriticalityCritical,
		Estimate:    15 * time.Second,
		Check: func(ctx context.Context) (bool, error) {
			return fp.HasRemote(ctx, remote)
		},
		Apply: func(ctx context.Context) error {
			return fp.AddRemote(ctx, remote, o.cfg.Flatpak.RemoteURL)
		},
	}
}

func (o *Orchestrator) dockerRepoPhase(pm *handlers.PackageManager) engine.Phase {
	cfg := o.cfg.Docker
	dl := handlers.NewDownloader(o.runner, o.retry)

	// Files present before Apply belong to the admin and survive a rollback.
	var created []string

	return engine.Phase{
		ID:          "docker-repo",
		Description: "Configure the Docker apt repository",
		Criticality: engine.CriticalityAdvisory,
		Estimate:    time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			return handlers.Exists(cfg.ListPath), nil
		},
		Apply: func(ctx context.Context) error {
			created = created[:0]
			for _, path := range []string{cfg.ListPath, cfg.Keyring} {
				if !handlers.Exists(path) {
					created = append(created, path)
				}
			}

			tmp, err := os.MkdirTemp("", "unify-docker-")
			if err != nil {
				return engine.Unchanged(err)
			}
			defer os.RemoveAll(tmp)

			key := filepath.Join(tmp, "docker.asc")
			if err := dl.Fetch(ctx, cfg.KeyURL, key, 0o644); err != nil {
				return engine.Unchanged(err)
			}

			arch, err := o.output(ctx, "dpkg", "--print-architecture")
			if err != nil {
				return engine.Unchanged(err)
			}
			codename, err := o.output(ctx, "lsb_release", "-cs")
			if err != nil {
				return engine.Unchanged(err)
			}

			if _, err := o.runner.Run(ctx, handlers.Command{
				Name:       "install",
				Args:       []string{"-d", "-m", "0755", filepath.Dir(cfg.Keyring)},
				Privileged: true,
			}); err != nil {
				return engine.Unchanged(err)
			}
			if _, err := o.runner.Run(ctx, handlers.Command{
				Name:       "gpg",
				Args:       []string{"--batch", "--yes", "--dearmor", "-o", cfg.Keyring, key},
				Privileged: true,
			}); err != nil {
				return err
			}

			line := fmt.Sprintf("deb [arch=%s signed-by=%s] %s %s stable\n", arch, cfg.Keyring, cfg.RepoURL, codename)
			if err := o.files.Write(ctx, cfg.ListPath, []byte(line), 0o644); err != nil {
				return err
			}
			return pm.Update(ctx)
		},
		// A broken source list makes every later apt update fail.
		Rollback: func(ctx context.Context) error {
			if len(created) == 0 {
				return nil
			}
			_, err := o.runner.Run(ctx, handlers.Command{
				Name:       "rm",
				Args:       append([]string{"-f"}, created...),
				Privileged: true,
			})
			return err
		},
	}
}

func (o *Orchestrator) shellPhase() engine.Phase {
	cfg := o.cfg.Shell
	dir := o.path(cfg.Dir)
	dl := handlers.NewDownloader(o.runner, o.retry)

	return engine.Phase{
		ID:           "shell-zsh",
		Description:  "Install oh-my-zsh and make zsh the login shell",
		Criticality:  engine.CriticalityAdvisory,
		Estimate:     time.Minute,
		Irreversible: true,
		Check: func(ctx context.Context) (bool, error) {
			return handlers.Exists(dir), nil
		},
		Apply: func(ctx context.Context) error {
			tmp, err := os.MkdirTemp("", "unify-zsh-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)

			script := filepath.Join(tmp, "install.sh")
			if err := dl.Fetch(ctx, cfg.InstallURL, script, 0o755); err != nil {
				return err
			}
			if _, err := o.runner.Run(ctx, handlers.Command{
				Name:  "sh",
				Args:  []string{script, "--unattended"},
				Env:   []string{"RUNZSH=no", "CHSH=no", "ZSH=" + dir},
				Stdin: []byte{},
			}); err != nil {
				return err
			}
			if !handlers.Exists(dir) {
				return fmt.Errorf("oh-my-zsh not found in %s after install", dir)
			}

			if _, err := o.runner.Run(ctx, handlers.Command{
				Name:  "chsh",
				Args:  []string{"-s", cfg.ZshPath},
				Stdin: []byte{},
			}); err != nil {
				o.logger.Warn().Err(err).Msg("Could not change login shell to zsh")
			}
			return nil
		},
	}
}

func (o *Orchestrator) flatpakAppPhase(fp *handlers.Flatpak, app string) engine.Phase {
	return engine.Phase{
		ID:          "app:" + app,
		Description: fmt.Sprintf("Install flatpak %s", app),
		Criticality: engine.CriticalityAdvisory,
		Estimate:    90 * time.Second,
		Check: func(ctx context.Context) (bool, error) {
			return fp.Installed(ctx, app)
		},
		Apply: func(ctx context.Context) error {
			return fp.Install(ctx, app)
		},
	}
}

func (o *Orchestrator) micromambaPhase() engine.Phase {
	cfg := o.cfg.Micromamba
	binDir := o.path(cfg.BinDir)
	bin := filepath.Join(binDir, "micromamba")
	dl := handlers.NewDownloader(o.runner, o.retry)

	return engine.Phase{
		ID:          "micromamba",
		Description: "Install micromamba",
		Criticality: engine.CriticalityAdvisory,
		Estimate:    time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			if _, err := o.lookPath("micromamba"); err == nil {
				return true, nil
			}
			return handlers.Exists(bin), nil
		},
		Apply: func(ctx context.Context) error {
			tmp, err := os.MkdirTemp("", "unify-micromamba-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)

			script := filepath.Join(tmp, "install.sh")
			if err := dl.Fetch(ctx, cfg.InstallURL, script, 0o755); err != nil {
				return err
			}
			if _, err := o.runner.Run(ctx, handlers.Command{
				Name: "bash",
				Args: []string{script},
				Env: []string{
					"BIN_FOLDER=" + binDir,
					"INIT_YES=yes",
					"CONDA_FORGE_YES=yes",
				},
				Stdin: []byte{},
			}); err != nil {
				return err
			}
			if !handlers.Exists(bin) {
				return fmt.Errorf("micromamba not found in %s after install", binDir)
			}
			return nil
		},
	}
}

func (o *Orchestrator) appImagePhase(img AppImage) engine.Phase {
	dest := o.path(img.Dest)
	dl := handlers.NewDownloader(o.runner, o.retry)

	return engine.Phase{
		ID:          "appimage:" + img.Name,
		Description: fmt.Sprintf("Download %s AppImage", img.Name),
		Criticality: engine.CriticalityAdvisory,
		Estimate:    time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			return handlers.Exists(dest), nil
		},
		Apply: func(ctx context.Context) error {
			if err := dl.Fetch(ctx, img.URL, dest, 0o755); err != nil {
				// A partial file would satisfy the next check.
				if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					o.logger.Warn().Err(rmErr).Str("path", dest).Msg("Could not remove partial download")
				}
				return err
			}
			return nil
		},
	}
}

// ErrSSHDConfigMissing is reported by the ssh-port phase when there is no
// sshd_config to edit.
var ErrSSHDConfigMissing = errors.New("sshd_config not found")

func (o *Orchestrator) sshPortPhase() engine.Phase {
	cfg := o.cfg.SSH
	sshd := handlers.NewSSHDConfig(cfg.ConfigPath, o.files)
	services := handlers.NewServices(o.runner)

	// Without an sshd_config there is no server to move. That is reported as
	// an advisory failure instead of aborting the run.
	criticality := engine.CriticalityCritical
	if !handlers.Exists(sshd.Path()) {
		criticality = engine.CriticalityAdvisory
	}

	return engine.Phase{
		ID:          "ssh-port",
		Description: fmt.Sprintf("Move sshd to port %d", cfg.Port),
		Criticality: criticality,
		Estimate:    time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			if !handlers.Exists(sshd.Path()) {
				return false, nil
			}
			return sshd.HasPort(cfg.Port)
		},
		Apply: func(ctx context.Context) error {
			if !handlers.Exists(sshd.Path()) {
				return engine.Unchanged(fmt.Errorf("%w at %s", ErrSSHDConfigMissing, sshd.Path()))
			}
			if _, err := sshd.Port(); err != nil {
				return engine.Unchanged(err)
			}

			previous, err := sshd.SetPort(ctx, cfg.Port)
			if errors.Is(err, handlers.ErrBackupFailed) {
				return engine.Unchanged(err)
			}
			if err != nil {
				return err
			}
			o.logger.Info().Int("from", previous).Int("to", cfg.Port).Msg("sshd port changed")

			if cfg.Validate {
				if err := sshd.Validate(ctx, o.runner); err != nil {
					return err
				}
			}
			return services.Restart(ctx, cfg.Services...)
		},
		Rollback: func(ctx context.Context) error {
			if err := sshd.Restore(ctx); err != nil {
				return err
			}
			return services.Restart(ctx, cfg.Services...)
		},
	}
}

func (o *Orchestrator) tmuxPhase() engine.Phase {
	cfg := o.cfg.Tmux
	src := o.path(cfg.ConfigSource)
	dest := o.path(cfg.ConfigDest)
	tpmDir := o.path(cfg.TPMDir)
	git := handlers.NewGit(o.runner, o.retry)

	return engine.Phase{
		ID:          "tmux",
		Description: "Install tmux config and plugin manager",
		Criticality: engine.CriticalityAdvisory,
		Estimate:    2 * time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			configured := src == "" || handlers.Exists(dest)
			return configured && handlers.IsRepo(tpmDir), nil
		},
		Apply: func(ctx context.Context) error {
			if src != "" {
				if err := handlers.EnsureDir(filepath.Dir(dest)); err != nil {
					return err
				}
				if err := handlers.CopyFile(src, dest); err != nil {
					return fmt.Errorf("failed to copy tmux config: %w", err)
				}
			}
			return git.CloneOrPull(ctx, cfg.TPMRepo, tpmDir)
		},
	}
}

func (o *Orchestrator) pipPhase(pip *handlers.Pip, pkg string) engine.Phase {
	return engine.Phase{
		ID:          "pip:" + pkg,
		Description: fmt.Sprintf("Install python package %s", pkg),
		Criticality: engine.CriticalityAdvisory,
		Estimate:    time.Minute,
		Check: func(ctx context.Context) (bool, error) {
			return pip.Installed(ctx, pkg)
		},
		Apply: func(ctx context.Context) error {
			return pip.Install(ctx, pkg)
		},
	}
}

// output runs a read-only command and returns its trimmed stdout.
func (o *Orchestrator) output(ctx context.Context, name string, args ...string) (string, error) {
	res, err := o.runner.Run(ctx, handlers.Command{Name: name, Args: args})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return "", fmt.Errorf("%s returned no output", name)
	}
	return out, nil
}
