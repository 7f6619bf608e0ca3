package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/unifikation/unify/pkg/engine"
)

// Config holds everything a scenario run can be tuned with. ParseConfig
// decodes over DefaultConfig, so omitted keys keep their defaults.
type Config struct {
	// Manager forces a package manager instead of detecting one.
	Manager string `yaml:"manager" validate:"omitempty,oneof=apt pacman apk"`

	// Packages replaces the default core package list of a scenario.
	Packages map[string][]string `yaml:"packages" validate:"dive,keys,required,endkeys,dive,required"`

	// Criticality overrides the default criticality per phase id. A key
	// ending in ":*" matches every phase with that prefix, e.g. "app:*".
	Criticality map[string]engine.Criticality `yaml:"criticality" validate:"dive,keys,required,endkeys,oneof=critical advisory"`

	// IndexValidity is how old the package index may be before
	// package-index refreshes it.
	IndexValidity time.Duration `yaml:"index_validity" validate:"gte=0"`

	SSH        SSHConfig        `yaml:"ssh"`
	Flatpak    FlatpakConfig    `yaml:"flatpak"`
	Docker     DockerConfig     `yaml:"docker"`
	Shell      ShellConfig      `yaml:"shell"`
	Tmux       TmuxConfig       `yaml:"tmux"`
	Micromamba MicromambaConfig `yaml:"micromamba"`
	AppImages  []AppImage       `yaml:"appimages" validate:"dive"`
	Pip        PipConfig        `yaml:"pip"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
}

// SSHConfig configures the ssh-port phase.
type SSHConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Port       int      `yaml:"port" validate:"min=1,max=65535"`
	ConfigPath string   `yaml:"config_path" validate:"required"`
	Services   []string `yaml:"services" validate:"min=1,dive,required"`

	// Validate runs `sshd -t` before restarting.
	Validate bool `yaml:"validate"`
}

// FlatpakConfig configures the flatpak phases.
type FlatpakConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Remote     string   `yaml:"remote" validate:"required"`
	RemoteURL  string   `yaml:"remote_url" validate:"required,url"`
	HelperRepo string   `yaml:"helper_repo" validate:"omitempty,url"`
	HelperDir  string   `yaml:"helper_dir" validate:"required_with=HelperRepo"`
	Apps       []string `yaml:"apps" validate:"dive,required"`
}

// HelperScript returns the easy-flatpak script path, or "" when no helper
// is configured.
func (f FlatpakConfig) HelperScript() string {
	if f.HelperRepo == "" || f.HelperDir == "" {
		return ""
	}
	return strings.TrimRight(f.HelperDir, "/") + "/easy-flatpak.sh"
}

// DockerConfig configures the upstream Docker apt repository.
type DockerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ListPath string `yaml:"list_path" validate:"required"`
	Keyring  string `yaml:"keyring" validate:"required"`
	KeyURL   string `yaml:"key_url" validate:"required,url"`
	RepoURL  string `yaml:"repo_url" validate:"required,url"`
}

// ShellConfig configures zsh and oh-my-zsh.
type ShellConfig struct {
	Enabled    bool   `yaml:"enabled"`
	InstallURL string `yaml:"install_url" validate:"required,url"`
	Dir        string `yaml:"dir" validate:"required"`
	ZshPath    string `yaml:"zsh_path" validate:"required"`
}

// TmuxConfig configures tmux and its plugin manager.
type TmuxConfig struct {
	Enabled bool `yaml:"enabled"`

	// ConfigSource is copied to ConfigDest when set.
	ConfigSource string `yaml:"config_source"`
	ConfigDest   string `yaml:"config_dest" validate:"required"`
	TPMRepo      string `yaml:"tpm_repo" validate:"required,url"`
	TPMDir       string `yaml:"tpm_dir" validate:"required"`
}

// MicromambaConfig configures the micromamba installer.
type MicromambaConfig struct {
	Enabled    bool   `yaml:"enabled"`
	InstallURL string `yaml:"install_url" validate:"required,url"`
	BinDir     string `yaml:"bin_dir" validate:"required"`
}

// AppImage is one AppImage download.
type AppImage struct {
	Name string `yaml:"name" validate:"required,excludesall=/"`
	URL  string `yaml:"url" validate:"required,url"`
	Dest string `yaml:"dest" validate:"required"`
}

// PipConfig configures user-level Python tools.
type PipConfig struct {
	Binary   string   `yaml:"binary"`
	Packages []string `yaml:"packages" validate:"dive,required"`
}

// TimeoutsConfig bounds external work.
type TimeoutsConfig struct {
	Apply    time.Duration `yaml:"apply" validate:"gte=0"`
	Check    time.Duration `yaml:"check" validate:"gte=0"`
	Rollback time.Duration `yaml:"rollback" validate:"gte=0"`
	Command  time.Duration `yaml:"command" validate:"gte=0"`

	// MaxOutput is how many bytes of each command stream are kept.
	MaxOutput int `yaml:"max_output" validate:"gte=0"`
}

// DefaultConfig returns the workstation defaults.
func DefaultConfig() *Config {
	return &Config{
		Packages:      map[string][]string{},
		Criticality:   map[string]engine.Criticality{},
		IndexValidity: 6 * time.Hour,
		SSH: SSHConfig{
			Enabled:    true,
			Port:       2222,
			ConfigPath: "/etc/ssh/sshd_config",
			Services:   []string{"ssh", "sshd"},
			Validate:   true,
		},
		Flatpak: FlatpakConfig{
			Enabled:    true,
			Remote:     "flathub",
			RemoteURL:  "https://flathub.org/repo/flathub.flatpakrepo",
			HelperRepo: "https://github.com/imikado/dupotEasyFlatpak.git",
			HelperDir:  "~/Programy/dupotEasyFlatpak",
			Apps: []string{
				"code",
				"code-insiders",
				"codium",
				"codium-insiders",
				"io.dbeaver.DBeaverCommunity",
				"cc.arduino.IDE2",
				"com.getpostman.Postman",
				"rest.insomnia.Insomnia",
				"org.mozilla.firefox",
				"org.telegram.desktop",
				"ch.protonmail.protonmail-bridge",
				"com.proton.pass",
				"com.github.tchx84.Flatseal",
			},
		},
		Docker: DockerConfig{
			Enabled:  true,
			ListPath: "/etc/apt/sources.list.d/docker.list",
			Keyring:  "/etc/apt/keyrings/docker.gpg",
			KeyURL:   "https://download.docker.com/linux/ubuntu/gpg",
			RepoURL:  "https://download.docker.com/linux/ubuntu",
		},
		Shell: ShellConfig{
			Enabled:    true,
			InstallURL: "https://raw.githubusercontent.com/ohmyzsh/ohmyzsh/master/tools/install.sh",
			Dir:        "~/.oh-my-zsh",
			ZshPath:    "/usr/bin/zsh",
		},
		Tmux: TmuxConfig{
			Enabled:    true,
			ConfigDest: "~/.tmux.conf",
			TPMRepo:    "https://github.com/tmux-plugins/tpm",
			TPMDir:     "~/.tmux/plugins/tpm",
		},
		Micromamba: MicromambaConfig{
			Enabled:    true,
			InstallURL: "https://micro.mamba.pm/install.sh",
			BinDir:     "~/.local/bin",
		},
		AppImages: []AppImage{
			{
				Name: "cursor",
				URL:  "https://downloader.cursor.sh/linux/appImage/x64",
				Dest: "~/AppImages/Cursor.AppImage",
			},
		},
		Pip: PipConfig{
			Binary: "pip3",
			Packages: []string{
				"openai",
				"anthropic",
				"google-generativeai",
				"torch",
				"transformers",
				"accelerate",
			},
		},
		Timeouts: TimeoutsConfig{
			Apply:     engine.DefaultApplyTimeout,
			Check:     engine.DefaultCheckTimeout,
			Rollback:  engine.DefaultRollbackTimeout,
			Command:   10 * time.Minute,
			MaxOutput: 64 * 1024,
		},
	}
}

// Validate checks the configuration with its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid scenario config: %w", err)
	}
	return nil
}

// ParseConfig decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse scenario config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads the config at path. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario config: %w", err)
	}
	return ParseConfig(data)
}

// CriticalityFor returns the configured criticality for a phase id, or def
// when no override matches. Exact ids win over prefix patterns, and the
// longest matching prefix wins among patterns. A bare "*" matches every id.
func (c *Config) CriticalityFor(phaseID string, def engine.Criticality) engine.Criticality {
	if crit, ok := c.Criticality[phaseID]; ok {
		return crit
	}

	best, bestLen := "", -1
	for key := range c.Criticality {
		prefix, ok := strings.CutSuffix(key, "*")
		if !ok || !strings.HasPrefix(phaseID, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = key, len(prefix)
		}
	}
	if bestLen >= 0 {
		return c.Criticality[best]
	}
	return def
}
