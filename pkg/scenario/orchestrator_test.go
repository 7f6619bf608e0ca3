package scenario

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/engine"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/handlers/handlerstest"
)

// minimalConfig keeps only the package phases and the ssh-port phase.
func minimalConfig(t *testing.T, sshdConfig string) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Flatpak.Enabled = false
	cfg.Docker.Enabled = false
	cfg.Shell.Enabled = false
	cfg.Tmux.Enabled = false
	cfg.Micromamba.Enabled = false
	cfg.AppImages = nil
	cfg.Pip.Packages = nil
	cfg.Packages["workstation"] = []string{"git"}

	path := filepath.Join(t.TempDir(), "sshd_config")
	require.NoError(t, os.WriteFile(path, []byte(sshdConfig), 0o644))
	cfg.SSH.ConfigPath = path
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *Config, runner handlers.Runner, opts ...Option) *Orchestrator {
	t.Helper()

	logger := zerolog.Nop()
	base := []Option{
		WithManager(catalog.ManagerApt),
		WithHome(t.TempDir()),
		WithFiles(handlers.NewFiles(nil, false)),
		WithIndexPath(t.TempDir()),
		WithRetryPolicy(handlers.RetryPolicy{MaxTries: 1, InitialInterval: time.Millisecond}),
		WithLookPath(func(string) (string, error) { return "", exec.ErrNotFound }),
	}
	o, err := New(cfg, runner, engine.NewExecutor(logger), logger, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

// installedRunner reports every apt package as installed.
func installedRunner() *handlerstest.Runner {
	return handlerstest.NewRunner().Succeed("dpkg-query", "install ok installed")
}

func phaseIDs(plan *Plan) []string {
	ids := make([]string, 0, len(plan.Phases))
	for _, p := range plan.Phases {
		ids = append(ids, p.ID)
	}
	return ids
}

func mustResult(t *testing.T, report *engine.ExecutionReport, id string) engine.PhaseResult {
	t.Helper()
	res, ok := report.Result(id)
	require.True(t, ok, "no result for phase %s", id)
	return res
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Packages["kiosk"] = []string{"git"}
	_, err := New(cfg, handlerstest.NewRunner(), nil, zerolog.Nop(), WithManager(catalog.ManagerApt))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownScenario)

	cfg = DefaultConfig()
	cfg.Manager = "yum"
	_, err = New(cfg, handlerstest.NewRunner(), nil, zerolog.Nop())
	require.Error(t, err)
}

func TestNew_ManagerSelection(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Manager = "pacman"
	o, err := New(cfg, handlerstest.NewRunner(), nil, zerolog.Nop(), WithHome(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, catalog.ManagerPacman, o.Manager())

	lookPath := func(name string) (string, error) {
		if name == "apk" {
			return "/sbin/apk", nil
		}
		return "", exec.ErrNotFound
	}
	o, err = New(DefaultConfig(), handlerstest.NewRunner(), nil, zerolog.Nop(), WithLookPath(lookPath), WithHome(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, catalog.ManagerApk, o.Manager())
}

func TestPlan_LLMServerPackages(t *testing.T) {
	t.Parallel()

	cfg := minimalConfig(t, "Port 22\n")
	cfg.Packages["llm-server"] = []string{"git", "python3", "pip"}
	o := newTestOrchestrator(t, cfg, handlerstest.NewRunner())

	plan, err := o.Plan("llm_server")
	require.NoError(t, err)

	assert.Equal(t, "llm-server", plan.Scenario)
	assert.Equal(t, catalog.ManagerApt, plan.Manager)
	assert.Len(t, plan.Packages.Packages, 3)
	assert.Equal(t, []string{"git", "python3", "python3-pip"}, plan.Packages.NativeNames())
	assert.Empty(t, plan.Packages.Conflicts)
	assert.Empty(t, plan.Packages.Unresolved)
	assert.Positive(t, plan.Packages.DiskMB)
	assert.Equal(t, plan.Packages.DiskMB+1000, plan.DiskMB)

	assert.Equal(t, []string{"package-index", "core-packages"}, phaseIDs(plan))
	assert.Positive(t, plan.Estimate)
}

func TestPlan_WorkstationPhases(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	o := newTestOrchestrator(t, cfg, handlerstest.NewRunner())

	plan, err := o.Plan("workstation")
	require.NoError(t, err)

	ids := phaseIDs(plan)
	require.Len(t, ids, 30)
	assert.Equal(t, []string{
		"package-index", "base-packages", "easy-flatpak", "flathub-remote",
		"docker-repo", "core-packages", "shell-zsh",
	}, ids[:7])
	assert.Equal(t, "app:code", ids[7])
	assert.Equal(t, []string{"micromamba", "appimage:cursor", "ssh-port", "tmux"}, ids[20:24])
	assert.Equal(t, "pip:openai", ids[24])

	byID := make(map[string]PhaseInfo, len(plan.Phases))
	for _, p := range plan.Phases {
		byID[p.ID] = p
	}
	assert.Equal(t, engine.CriticalityCritical, byID["core-packages"].Criticality)
	assert.Equal(t, engine.CriticalityCritical, byID["ssh-port"].Criticality)
	assert.True(t, byID["ssh-port"].Rollback)
	assert.Equal(t, engine.CriticalityAdvisory, byID["app:code"].Criticality)
	assert.Equal(t, engine.CriticalityAdvisory, byID["shell-zsh"].Criticality)
	assert.True(t, byID["shell-zsh"].Irreversible)
	assert.Equal(t, engine.CriticalityAdvisory, byID["pip:torch"].Criticality)
}

func TestPlan_DockerRepoOnlyOnApt(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, DefaultConfig(), handlerstest.NewRunner(), WithManager(catalog.ManagerPacman))

	plan, err := o.Plan("workstation")
	require.NoError(t, err)
	assert.NotContains(t, phaseIDs(plan), "docker-repo")
	assert.NotEmpty(t, plan.Packages.Unsupported)
}

func TestPlan_CriticalityOverride(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Criticality["app:*"] = engine.CriticalityCritical
	cfg.Criticality["ssh-port"] = engine.CriticalityAdvisory
	o := newTestOrchestrator(t, cfg, handlerstest.NewRunner())

	plan, err := o.Plan("workstation")
	require.NoError(t, err)
	for _, p := range plan.Phases {
		switch {
		case strings.HasPrefix(p.ID, "app:"):
			assert.Equal(t, engine.CriticalityCritical, p.Criticality, p.ID)
		case p.ID == "ssh-port":
			assert.Equal(t, engine.CriticalityAdvisory, p.Criticality)
		}
	}
}

func TestPlan_UnknownScenario(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, minimalConfig(t, "Port 22\n"), handlerstest.NewRunner())
	_, err := o.Plan("kiosk")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestRun_SSHPortAlreadySet(t *testing.T) {
	t.Parallel()

	runner := installedRunner()
	o := newTestOrchestrator(t, minimalConfig(t, "# comment\nPort 2222\n"), runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusSuccess, report.Status)
	assert.Equal(t, engine.OutcomeSkipped, mustResult(t, report, "ssh-port").Outcome)
	assert.Equal(t, engine.OutcomeSkipped, mustResult(t, report, "core-packages").Outcome)
	assert.Equal(t, engine.OutcomeSkipped, mustResult(t, report, "package-index").Outcome)
	assert.Zero(t, runner.Count("systemctl"))
	assert.Zero(t, runner.Count("apt-get"))
}

func TestRun_SSHRestartFailureRollsBack(t *testing.T) {
	t.Parallel()

	runner := installedRunner().FailTimes("systemctl restart", 2, 1, "Job for ssh.service failed")
	cfg := minimalConfig(t, "Port 22\nPermitRootLogin no\n")
	cfg.Pip.Packages = []string{"openai"}
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	ssh := mustResult(t, report, "ssh-port")
	assert.Equal(t, engine.OutcomeRolledBack, ssh.Outcome)
	assert.Empty(t, ssh.RollbackError)
	assert.Contains(t, ssh.Error, "ssh/sshd")
	assert.Equal(t, engine.RunStatusAborted, report.Status)
	assert.Equal(t, engine.OutcomeAbortedUpstream, mustResult(t, report, "pip:openai").Outcome)

	data, err := os.ReadFile(cfg.SSH.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "Port 22\nPermitRootLogin no\n", string(data))

	// Two failed restarts in Apply, one successful restart in Rollback.
	assert.Equal(t, 3, runner.Count("systemctl restart"))
	assert.Equal(t, 1, runner.Count("sshd -t"))
}

func TestRun_SSHFailureAdvisoryContinues(t *testing.T) {
	t.Parallel()

	runner := installedRunner().Fail("systemctl restart", 1, "failed")
	cfg := minimalConfig(t, "Port 22\n")
	cfg.Criticality["ssh-port"] = engine.CriticalityAdvisory
	cfg.Pip.Packages = []string{"openai"}
	runner.Fail("pip3 show", 1, "not found")
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	ssh := mustResult(t, report, "ssh-port")
	assert.Equal(t, engine.OutcomeRolledBack, ssh.Outcome)
	assert.NotEmpty(t, ssh.RollbackError)
	assert.Equal(t, engine.RunStatusWarnings, report.Status)
	assert.Equal(t, engine.OutcomeSucceeded, mustResult(t, report, "pip:openai").Outcome)
}

func TestRun_AdvisoryAppFailure(t *testing.T) {
	t.Parallel()

	apps := []string{"app.one", "app.two", "app.three", "app.four", "app.five"}
	runner := installedRunner().
		Succeed("flatpak remotes", "flathub\n").
		Fail("flatpak install -y --noninteractive flathub app.three", 1, "error: No remote refs found")

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.Flatpak.Enabled = true
	cfg.Flatpak.HelperRepo = ""
	cfg.Flatpak.HelperDir = ""
	cfg.Flatpak.Apps = apps
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	succeeded, failed := 0, 0
	for _, app := range apps {
		switch mustResult(t, report, "app:"+app).Outcome {
		case engine.OutcomeSucceeded:
			succeeded++
		case engine.OutcomeFailed:
			failed++
		}
	}
	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, engine.OutcomeFailed, mustResult(t, report, "app:app.three").Outcome)
	assert.Equal(t, engine.RunStatusWarnings, report.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "app:app.three")

	// Phases after the failure still ran.
	assert.Equal(t, engine.OutcomeSkipped, mustResult(t, report, "ssh-port").Outcome)
}

func TestRun_DryRun(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner()
	cfg := minimalConfig(t, "Port 22\n")
	o := newTestOrchestrator(t, cfg, runner, WithIndexPath(filepath.Join(t.TempDir(), "missing")))

	report, err := o.Run(context.Background(), "workstation", true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, engine.RunStatusSuccess, report.Status)
	for _, res := range report.Results {
		assert.Equal(t, engine.OutcomeSimulated, res.Outcome, res.PhaseID)
	}
	assert.Zero(t, runner.Count("apt-get"))
	assert.Zero(t, runner.Count("systemctl"))

	data, err := os.ReadFile(cfg.SSH.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "Port 22\n", string(data))
}

func TestRun_PlanIssuesBecomeWarnings(t *testing.T) {
	t.Parallel()

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.Packages["workstation"] = []string{"git", "no-such-package"}
	o := newTestOrchestrator(t, cfg, installedRunner())

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.RunStatusSuccess, report.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no-such-package")
}

func TestRun_CoreInstallsMissingOnly(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().
		Succeed("dpkg-query", "install ok installed").
		Fail("dpkg-query -W -f=${Status} curl", 1, "no packages found")
	cfg := minimalConfig(t, "Port 2222\n")
	cfg.Packages["workstation"] = []string{"git", "curl"}
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeSucceeded, mustResult(t, report, "core-packages").Outcome)
	assert.Equal(t, 1, runner.Count("apt-get install -y --no-install-recommends curl"))
	assert.Zero(t, runner.Count("apt-get install -y --no-install-recommends git"))
}

func TestRun_StaleIndexRefreshes(t *testing.T) {
	t.Parallel()

	runner := installedRunner()
	o := newTestOrchestrator(t, minimalConfig(t, "Port 2222\n"), runner,
		WithIndexPath(filepath.Join(t.TempDir(), "pkgcache.bin")))

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeSucceeded, mustResult(t, report, "package-index").Outcome)
	assert.Equal(t, 1, runner.Count("apt-get update"))
}

func TestRun_CriticalPackageFailureAborts(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().Fail("apt-get install", 100, "E: Unable to locate package")
	o := newTestOrchestrator(t, minimalConfig(t, "Port 22\n"), runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeFailed, mustResult(t, report, "core-packages").Outcome)
	assert.Equal(t, engine.OutcomeAbortedUpstream, mustResult(t, report, "ssh-port").Outcome)
	assert.Equal(t, engine.RunStatusAborted, report.Status)
}

func TestRun_DockerRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := installedRunner().
		Succeed("dpkg --print-architecture", "amd64\n").
		Succeed("lsb_release -cs", "noble\n").
		Do("curl", writeCurlOutput("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"))

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.SSH.Enabled = false
	cfg.Docker.Enabled = true
	cfg.Docker.ListPath = filepath.Join(dir, "docker.list")
	cfg.Docker.Keyring = filepath.Join(dir, "keyrings", "docker.gpg")
	cfg.Packages["workstation"] = []string{"docker-ce"}
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSucceeded, mustResult(t, report, "docker-repo").Outcome)

	data, err := os.ReadFile(cfg.Docker.ListPath)
	require.NoError(t, err)
	assert.Equal(t,
		"deb [arch=amd64 signed-by="+cfg.Docker.Keyring+"] https://download.docker.com/linux/ubuntu noble stable\n",
		string(data))
	assert.Equal(t, 1, runner.Count("gpg --batch --yes --dearmor"))
	assert.Equal(t, 1, runner.Count("apt-get update"))
}

func TestRun_DockerRepositoryRollback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := installedRunner().
		Succeed("dpkg --print-architecture", "amd64\n").
		Succeed("lsb_release -cs", "noble\n").
		Do("curl", writeCurlOutput("key")).
		Fail("apt-get update", 100, "E: The repository is not signed")

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.Docker.Enabled = true
	cfg.Docker.ListPath = filepath.Join(dir, "docker.list")
	cfg.Docker.Keyring = filepath.Join(dir, "docker.gpg")
	cfg.Packages["workstation"] = []string{"docker-ce"}
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeRolledBack, mustResult(t, report, "docker-repo").Outcome)
	assert.Equal(t, engine.RunStatusWarnings, report.Status)
	assert.Contains(t, runner.Lines(), "rm -f "+cfg.Docker.ListPath+" "+cfg.Docker.Keyring)
}

func TestRun_DockerRepositoryRollbackKeepsExistingKeyring(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := installedRunner().
		Succeed("dpkg --print-architecture", "amd64\n").
		Succeed("lsb_release -cs", "noble\n").
		Do("curl", writeCurlOutput("key")).
		Fail("apt-get update", 100, "E: The repository is not signed")

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.Docker.Enabled = true
	cfg.Docker.ListPath = filepath.Join(dir, "docker.list")
	cfg.Docker.Keyring = filepath.Join(dir, "docker.gpg")
	cfg.Packages["workstation"] = []string{"docker-ce"}
	require.NoError(t, os.WriteFile(cfg.Docker.Keyring, []byte("admin key"), 0o644))
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeRolledBack, mustResult(t, report, "docker-repo").Outcome)
	assert.Contains(t, runner.Lines(), "rm -f "+cfg.Docker.ListPath)
	for _, line := range runner.Lines() {
		if strings.HasPrefix(line, "rm ") {
			assert.NotContains(t, line, cfg.Docker.Keyring)
		}
	}
}

func TestRun_SSHConfigMissingIsAdvisory(t *testing.T) {
	t.Parallel()

	runner := installedRunner()
	cfg := minimalConfig(t, "Port 22\n")
	cfg.SSH.ConfigPath = filepath.Join(t.TempDir(), "sshd_config")
	cfg.Pip.Packages = []string{"openai"}
	o := newTestOrchestrator(t, cfg, runner)

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	ssh := mustResult(t, report, "ssh-port")
	assert.Equal(t, engine.OutcomeFailed, ssh.Outcome)
	assert.Equal(t, engine.CriticalityAdvisory, ssh.Criticality)
	assert.Contains(t, ssh.Error, "sshd_config not found")
	assert.Equal(t, engine.RunStatusWarnings, report.Status)
	assert.NotEqual(t, engine.OutcomeAbortedUpstream, mustResult(t, report, "pip:openai").Outcome)
	assert.Zero(t, runner.Count("systemctl"))
	assert.Zero(t, runner.Count("sshd -t"))
}

func TestRun_AppImageFailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	runner := installedRunner().Do("curl", func(cmd handlers.Command) (*handlers.Result, error) {
		dest := outputPath(cmd)
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return &handlers.Result{ExitCode: 18}, &handlers.ExitError{Command: cmd.String(), ExitCode: 18}
	})

	cfg := minimalConfig(t, "Port 2222\n")
	cfg.AppImages = []AppImage{{Name: "tool", URL: "https://example.com/tool.AppImage", Dest: "~/AppImages/Tool.AppImage"}}
	o := newTestOrchestrator(t, cfg, runner, WithHome(home))

	report, err := o.Run(context.Background(), "workstation", false)
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeFailed, mustResult(t, report, "appimage:tool").Outcome)
	assert.Equal(t, engine.RunStatusWarnings, report.Status)
	assert.NoFileExists(t, filepath.Join(home, "AppImages", "Tool.AppImage"))
}

func TestRun_InterruptStopsAtPhaseBoundary(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := installedRunner().Do("apt-get update", func(cmd handlers.Command) (*handlers.Result, error) {
		cancel()
		return &handlers.Result{}, nil
	})
	o := newTestOrchestrator(t, minimalConfig(t, "Port 22\n"), runner,
		WithIndexPath(filepath.Join(t.TempDir(), "missing")))

	report, err := o.Run(ctx, "workstation", false)
	require.NoError(t, err)

	assert.True(t, report.Interrupted)
	assert.Equal(t, engine.RunStatusAborted, report.Status)
	assert.Equal(t, engine.OutcomeSucceeded, mustResult(t, report, "package-index").Outcome)
	assert.Equal(t, engine.OutcomeAbortedUpstream, mustResult(t, report, "ssh-port").Outcome)
}

func TestRun_NoExecutor(t *testing.T) {
	t.Parallel()

	o, err := New(minimalConfig(t, "Port 22\n"), handlerstest.NewRunner(), nil, zerolog.Nop(),
		WithManager(catalog.ManagerApt), WithHome(t.TempDir()))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "workstation", false)
	assert.Error(t, err)
}

func outputPath(cmd handlers.Command) string {
	for i, arg := range cmd.Args {
		if arg == "-o" && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	return ""
}

// writeCurlOutput simulates a successful download.
func writeCurlOutput(content string) handlerstest.Func {
	return func(cmd handlers.Command) (*handlers.Result, error) {
		if err := os.WriteFile(outputPath(cmd), []byte(content), 0o644); err != nil {
			return nil, err
		}
		return &handlers.Result{}, nil
	}
}
