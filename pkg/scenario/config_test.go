package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifikation/unify/pkg/engine"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, "~/Programy/dupotEasyFlatpak/easy-flatpak.sh", cfg.Flatpak.HelperScript())
	assert.Len(t, cfg.Flatpak.Apps, 13)
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
manager: pacman
index_validity: 30m
ssh:
  port: 2200
criticality:
  "app:*": critical
  ssh-port: advisory
packages:
  llm-server: [git, python3]
pip:
  packages: []
timeouts:
  apply: 5m
`))
	require.NoError(t, err)

	assert.Equal(t, "pacman", cfg.Manager)
	assert.Equal(t, 30*time.Minute, cfg.IndexValidity)
	assert.Equal(t, 2200, cfg.SSH.Port)
	assert.Equal(t, "/etc/ssh/sshd_config", cfg.SSH.ConfigPath, "defaults are kept")
	assert.Equal(t, []string{"git", "python3"}, cfg.Packages["llm-server"])
	assert.Empty(t, cfg.Pip.Packages)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Apply)
	assert.Equal(t, engine.DefaultCheckTimeout, cfg.Timeouts.Check)
}

func TestParseConfig_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown key", yaml: "colour: blue\n"},
		{name: "bad manager", yaml: "manager: yum\n"},
		{name: "bad criticality", yaml: "criticality:\n  ssh-port: optional\n"},
		{name: "port out of range", yaml: "ssh:\n  port: 70000\n"},
		{name: "no services", yaml: "ssh:\n  services: []\n"},
		{name: "empty package id", yaml: "packages:\n  workstation: [\"\"]\n"},
		{name: "appimage name with slash", yaml: "appimages:\n  - name: a/b\n    url: https://example.com/x\n    dest: /tmp/x\n"},
		{name: "negative timeout", yaml: "timeouts:\n  apply: -1s\n"},
		{name: "not yaml", yaml: "ssh: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "unify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ssh:\n  enabled: false\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.SSH.Enabled)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCriticalityFor(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Criticality = map[string]engine.Criticality{
		"app:*":          engine.CriticalityCritical,
		"app:org.*":      engine.CriticalityAdvisory,
		"app:org.gimp":   engine.CriticalityCritical,
		"ssh-port":       engine.CriticalityAdvisory,
		"pip:*":          engine.CriticalityCritical,
		"pip:transformr": engine.CriticalityAdvisory,
	}

	tests := []struct {
		phase string
		def   engine.Criticality
		want  engine.Criticality
	}{
		{"ssh-port", engine.CriticalityCritical, engine.CriticalityAdvisory},
		{"app:code", engine.CriticalityAdvisory, engine.CriticalityCritical},
		{"app:org.mozilla.firefox", engine.CriticalityCritical, engine.CriticalityAdvisory},
		{"app:org.gimp", engine.CriticalityAdvisory, engine.CriticalityCritical},
		{"pip:torch", engine.CriticalityAdvisory, engine.CriticalityCritical},
		{"tmux", engine.CriticalityAdvisory, engine.CriticalityAdvisory},
		{"core-packages", engine.CriticalityCritical, engine.CriticalityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.CriticalityFor(tt.phase, tt.def), tt.phase)
	}
}

func TestCriticalityFor_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Criticality = map[string]engine.Criticality{
		"*":        engine.CriticalityCritical,
		"app:*":    engine.CriticalityAdvisory,
		"app:c*":   engine.CriticalityCritical,
		"app:cod*": engine.CriticalityAdvisory,
		"app:code": engine.CriticalityCritical,
	}

	tests := []struct {
		phase string
		want  engine.Criticality
	}{
		{"app:code", engine.CriticalityCritical},
		{"app:codium", engine.CriticalityAdvisory},
		{"app:cursor", engine.CriticalityCritical},
		{"app:firefox", engine.CriticalityAdvisory},
		{"pip:x", engine.CriticalityCritical},
		{"tmux", engine.CriticalityCritical},
	}

	// Map iteration order varies between calls.
	for i := 0; i < 100; i++ {
		for _, tt := range tests {
			require.Equal(t, tt.want, cfg.CriticalityFor(tt.phase, engine.CriticalityAdvisory), tt.phase)
		}
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Len(t, cfg.ExecutorOptions(), 3)
	assert.Len(t, cfg.RunnerOptions(), 2)
}
