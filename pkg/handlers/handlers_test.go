package handlers_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifikation/unify/pkg/catalog"
	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/handlers/handlerstest"
)

const sampleSSHDConfig = `# OpenSSH server configuration
#Port 22
#AddressFamily any
PermitRootLogin no
PasswordAuthentication yes
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sshd_config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSSHDConfig_PortDefaultsTo22(t *testing.T) {
	t.Parallel()

	cfg := handlers.NewSSHDConfig(writeConfig(t, sampleSSHDConfig), handlers.NewFiles(nil, false))

	port, err := cfg.Port()
	require.NoError(t, err)
	assert.Equal(t, 22, port)

	has, err := cfg.HasPort(22)
	require.NoError(t, err)
	assert.False(t, has, "commented Port lines are not active")
}

func TestSSHDConfig_SetPortAndRestore(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleSSHDConfig)
	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))

	previous, err := cfg.SetPort(context.Background(), 2222)
	require.NoError(t, err)
	assert.Equal(t, 22, previous)

	has, err := cfg.HasPort(2222)
	require.NoError(t, err)
	assert.True(t, has)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PermitRootLogin no")
	assert.Contains(t, string(data), "#AddressFamily any")
	assert.NotContains(t, string(data), "#Port 22")
	assert.FileExists(t, cfg.BackupPath())

	require.NoError(t, cfg.Restore(context.Background()))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleSSHDConfig, string(data))
}

func TestSSHDConfig_ReplacesActivePort(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "#Port 22\nPort 2200\nUsePAM yes\n")
	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))

	previous, err := cfg.SetPort(context.Background(), 2222)
	require.NoError(t, err)
	assert.Equal(t, 2200, previous)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#Port 22\nPort 2222\nUsePAM yes\n", string(data))
}

func TestSSHDConfig_AppendsWhenMissing(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "UsePAM yes\n")
	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))

	_, err := cfg.SetPort(context.Background(), 2222)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "UsePAM yes\nPort 2222\n", string(data))
}

func TestSSHDConfig_RestoreFromBackupFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "Port 2222\n")
	require.NoError(t, os.WriteFile(path+".bak", []byte("Port 22\n"), 0o644))

	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))
	require.NoError(t, cfg.Restore(context.Background()))

	port, err := cfg.Port()
	require.NoError(t, err)
	assert.Equal(t, 22, port)
}

func TestSSHDConfig_InvalidPort(t *testing.T) {
	t.Parallel()

	cfg := handlers.NewSSHDConfig(writeConfig(t, sampleSSHDConfig), handlers.NewFiles(nil, false))
	_, err := cfg.SetPort(context.Background(), 70000)
	assert.Error(t, err)
}

func TestSSHDConfig_PortDirectiveForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"lowercase keyword", "port 2200\n", 2200},
		{"upper case keyword", "PORT 2201\n", 2201},
		{"trailing comment", "Port 2202 # moved off 22\n", 2202},
		{"indented", "  Port 2203\n", 2203},
		{"commented out", "#Port 2204\n", 22},
		{"only inside match block", "UsePAM yes\nMatch User git\n  Port 2205\n", 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := handlers.NewSSHDConfig(writeConfig(t, tt.content), handlers.NewFiles(nil, false))
			port, err := cfg.Port()
			require.NoError(t, err)
			assert.Equal(t, tt.want, port)
		})
	}
}

func TestSSHDConfig_ReplacesPortWithTrailingComment(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "port 22 # default\nUsePAM yes\n")
	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))

	previous, err := cfg.SetPort(context.Background(), 2222)
	require.NoError(t, err)
	assert.Equal(t, 22, previous)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Port 2222\nUsePAM yes\n", string(data))
}

func TestSSHDConfig_InsertsBeforeMatchBlock(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "UsePAM yes\nMatch User backup\n  #Port 2200\n  ForceCommand internal-sftp\n")
	cfg := handlers.NewSSHDConfig(path, handlers.NewFiles(nil, false))

	_, err := cfg.SetPort(context.Background(), 2222)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "UsePAM yes\nPort 2222\n\nMatch User backup\n  #Port 2200\n  ForceCommand internal-sftp\n", string(data))

	has, err := cfg.HasPort(2222)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFiles_WriteWithSudo(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner()
	files := handlers.NewFiles(runner, true)

	require.NoError(t, files.Write(context.Background(), "/etc/ssh/sshd_config", []byte("Port 2222\n"), 0o644))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "tee /etc/ssh/sshd_config", calls[0].String())
	assert.True(t, calls[0].Privileged)
	assert.Equal(t, "Port 2222\n", string(calls[0].Stdin))
	assert.Equal(t, "chmod 644 /etc/ssh/sshd_config", calls[1].String())
}

func TestDetectManager(t *testing.T) {
	t.Parallel()

	lookPath := func(available ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, a := range available {
				if a == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}

	m, err := handlers.DetectManager(lookPath("pacman", "apk"))
	require.NoError(t, err)
	assert.Equal(t, catalog.ManagerPacman, m)

	m, err = handlers.DetectManager(lookPath("apt-get", "pacman"))
	require.NoError(t, err)
	assert.Equal(t, catalog.ManagerApt, m)

	_, err = handlers.DetectManager(lookPath("dnf"))
	assert.Error(t, err)
}

func TestPackageManager_AptInstalled(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().
		Succeed("dpkg-query -W -f=${Status} git", "install ok installed").
		Succeed("dpkg-query -W -f=${Status} tmux", "deinstall ok config-files").
		Fail("dpkg-query -W -f=${Status} htop", 1, "no packages found matching htop")

	pm := handlers.NewPackageManager(catalog.ManagerApt, runner)

	missing, err := pm.Missing(context.Background(), []string{"git", "tmux", "htop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tmux", "htop"}, missing)
}

func TestPackageManager_InstallCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		manager catalog.Manager
		want    string
	}{
		{catalog.ManagerApt, "apt-get install -y --no-install-recommends git curl"},
		{catalog.ManagerPacman, "pacman -S --needed --noconfirm git curl"},
		{catalog.ManagerApk, "apk add --no-progress git curl"},
	}

	for _, tt := range tests {
		t.Run(string(tt.manager), func(t *testing.T) {
			runner := handlerstest.NewRunner()
			pm := handlers.NewPackageManager(tt.manager, runner)

			require.NoError(t, pm.Install(context.Background(), "git", "curl"))

			calls := runner.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].String())
			assert.True(t, calls[0].Privileged)
		})
	}
}

func TestPackageManager_InstallFailure(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().Fail("apt-get install", 100, "E: Unable to locate package nope")
	pm := handlers.NewPackageManager(catalog.ManagerApt, runner)

	err := pm.Install(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to locate package")
	assert.NoError(t, pm.Install(context.Background()), "empty install is a no-op")
}

func TestPackageManager_IndexAge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pm := handlers.NewPackageManager(catalog.ManagerApt, handlerstest.NewRunner()).WithIndexPath(dir)

	age, err := pm.IndexAge()
	require.NoError(t, err)
	assert.Less(t, age, time.Minute)

	pm.WithIndexPath(filepath.Join(dir, "missing"))
	_, err = pm.IndexAge()
	assert.Error(t, err)
}

func TestServices_RestartFallsBack(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().Fail("systemctl restart sshd", 5, "Unit sshd.service not found.")
	svc := handlers.NewServices(runner)

	require.NoError(t, svc.Restart(context.Background(), "sshd", "ssh"))
	assert.Equal(t, []string{"systemctl restart sshd", "systemctl restart ssh"}, runner.Lines())
}

func TestServices_RestartAllFail(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().Fail("systemctl restart", 1, "failed")
	err := handlers.NewServices(runner).Restart(context.Background(), "sshd", "ssh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sshd/ssh")
}

func TestGit_CloneRetries(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().FailTimes("git clone", 1, 128, "Could not resolve host")
	retry := handlers.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	dir := filepath.Join(t.TempDir(), "Programy", "dupotEasyFlatpak")
	err := handlers.NewGit(runner, retry).CloneOrPull(context.Background(), "https://example.org/repo.git", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.Count("git clone"))
}

func TestGit_PullsExistingCheckout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	runner := handlerstest.NewRunner()
	err := handlers.NewGit(runner, handlers.DefaultRetryPolicy).CloneOrPull(context.Background(), "https://example.org/repo.git", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"git -C " + dir + " pull --ff-only"}, runner.Lines())
}

func TestDownloader_Fetch(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "AppImages", "Cursor.AppImage")
	runner := handlerstest.NewRunner().Do("curl", func(cmd handlers.Command) (*handlers.Result, error) {
		return &handlers.Result{}, os.WriteFile(dest, []byte("ELF"), 0o644)
	})

	err := handlers.NewDownloader(runner, handlers.DefaultRetryPolicy).Fetch(context.Background(), "https://example.org/app", dest, 0o755)
	require.NoError(t, err)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestFlatpak(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().
		Succeed("flatpak remotes", "fedora\nflathub\n").
		Succeed("flatpak list", "com.visualstudio.code\norg.mozilla.firefox\n")
	fp := handlers.NewFlatpak(runner, "")
	ctx := context.Background()

	ok, err := fp.HasRemote(ctx, "flathub")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fp.Installed(ctx, "code")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fp.Installed(ctx, "org.telegram.desktop")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fp.Install(ctx, "org.telegram.desktop"))
	assert.Equal(t, 1, runner.Count("flatpak install -y --noninteractive flathub org.telegram.desktop"))

	helper := handlers.NewFlatpak(runner, "/home/u/Programy/dupotEasyFlatpak/easy-flatpak.sh")
	require.NoError(t, helper.Install(ctx, "codium"))
	assert.Equal(t, 1, runner.Count("/home/u/Programy/dupotEasyFlatpak/easy-flatpak.sh install codium"))
}

func TestPip(t *testing.T) {
	t.Parallel()

	runner := handlerstest.NewRunner().
		Succeed("pip3 show openai", "Name: openai").
		Fail("pip3 show torch", 1, "WARNING: Package(s) not found: torch")
	pip := handlers.NewPip(runner, "")
	ctx := context.Background()

	ok, err := pip.Installed(ctx, "openai")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pip.Installed(ctx, "torch")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, pip.Install(ctx, "torch"))
	assert.Equal(t, 1, runner.Count("pip3 install --user torch"))
}
