package scenario

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownScenario is returned for a scenario name that is not registered.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a named provisioning target.
type Scenario struct {
	Name string `json:"name"`

	// Summary is a short English description; localized titles live in
	// the report catalogs under "scenario.<name>".
	Summary string `json:"summary"`

	// Packages is the default core package list, as catalog ids.
	Packages []string `json:"packages"`

	// Full marks scenarios with the complete workstation phase list.
	// Others install their core packages only.
	Full bool `json:"full"`
}

// workstationPackages mirrors the core package set of a development
// workstation.
var workstationPackages = []string{
	// Network and services
	"openssh-server", "net-tools", "tailscale",
	"docker-ce", "docker-ce-cli", "containerd.io",
	"podman-docker",
	"qemu-kvm", "virt-manager",
	// Terminal and shell
	"tmux", "alacritty", "zsh", "zsh-common",
	"ripgrep", "bat", "htop", "iftop", "iotop",
	// Development
	"build-essential", "cmake", "git", "gh",
	"python3-all", "python3-pip", "nodejs", "npm",
	// CLI utilities
	"sqlite3", "jq", "yq", "shellcheck",
	"curl", "wget", "flatpak",
	// Power management
	"cpufrequtils", "lm-sensors",
}

var builtin = []Scenario{
	{
		Name:     "workstation",
		Summary:  "Development workstation",
		Packages: workstationPackages,
		Full:     true,
	},
	{
		Name:    "llm-server",
		Summary: "LLM server",
		Packages: []string{
			"git", "git-lfs", "python3", "pip", "python3-venv", "python3-dev",
			"build-essential", "cmake", "curl", "wget", "tmux", "htop", "nvtop", "ffmpeg",
			"openssh-server",
		},
	},
	{
		Name:    "orchestration",
		Summary: "Home automation hub",
		Packages: []string{
			"docker", "docker-compose", "git", "curl", "wget", "tmux", "htop",
			"openssh-server", "net-tools", "tailscale",
		},
	},
	{
		Name:    "database",
		Summary: "Database server",
		Packages: []string{
			"postgresql", "redis", "sqlite3", "curl", "tmux", "htop", "openssh-server",
		},
	},
	{
		Name:    "monitoring",
		Summary: "Monitoring and observability",
		Packages: []string{
			"prometheus", "prometheus-node-exporter", "nginx", "curl", "tmux", "htop",
			"openssh-server",
		},
	},
}

// Names returns the registered scenario names in menu order.
func Names() []string {
	out := make([]string, 0, len(builtin))
	for _, s := range builtin {
		out = append(out, s.Name)
	}
	return out
}

// All returns copies of every registered scenario, sorted by name.
func All() []Scenario {
	out := make([]Scenario, 0, len(builtin))
	for _, s := range builtin {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the scenario called name. Underscores are accepted in
// place of dashes, so "llm_server" finds "llm-server".
func Lookup(name string) (Scenario, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, s := range builtin {
		if s.Name == norm {
			return s.clone(), nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownScenario, name, strings.Join(Names(), ", "))
}

func (s Scenario) clone() Scenario {
	s.Packages = append([]string(nil), s.Packages...)
	return s
}
