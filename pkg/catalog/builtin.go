package catalog

func names(apt, pacman, apk string) map[Manager]string {
	n := make(map[Manager]string, 3)
	if apt != "" {
		n[ManagerApt] = apt
	}
	if pacman != "" {
		n[ManagerPacman] = pacman
	}
	if apk != "" {
		n[ManagerApk] = apk
	}
	return n
}

var builtinEntries = []Entry{
	{ID: "git", Description: "Distributed version control", Names: names("git", "git", "git")},
	{ID: "python3", Description: "Python 3 interpreter", Names: names("python3", "python", "python3")},
	{ID: "pip", Description: "Python package installer", Names: names("python3-pip", "python-pip", "py3-pip")},
	{ID: "python3-pip", Description: "Python package installer", Names: names("python3-pip", "python-pip", "py3-pip")},
	{ID: "python3-dev", Description: "Python headers", Names: names("python3-dev", "", "python3-dev")},
	{ID: "python3-venv", Description: "Python virtual environments", Names: names("python3-venv", "", "")},
	{ID: "python3-all", Description: "All supported Python 3 versions", Names: names("python3-all", "", "")},
	{ID: "curl", Description: "URL transfer tool", Names: names("curl", "curl", "curl")},
	{ID: "wget", Description: "Network downloader", Names: names("wget", "wget", "wget")},
	{ID: "ssh", Description: "OpenSSH client", Names: names("openssh-client", "openssh", "openssh-client")},
	{ID: "sshd", Description: "OpenSSH server", Names: names("openssh-server", "openssh", "openssh-server")},
	{ID: "openssh-server", Description: "OpenSSH server", Names: names("openssh-server", "openssh", "openssh-server")},
	{ID: "tmux", Description: "Terminal multiplexer", Names: names("tmux", "tmux", "tmux")},
	{ID: "htop", Description: "Interactive process viewer", Names: names("htop", "htop", "htop")},
	{ID: "iftop", Description: "Network bandwidth monitor", Names: names("iftop", "iftop", "iftop")},
	{ID: "iotop", Description: "I/O monitor", Names: names("iotop", "iotop", "iotop")},
	{ID: "nodejs", Description: "JavaScript runtime", Names: names("nodejs", "nodejs", "nodejs")},
	{ID: "npm", Description: "Node package manager", Names: names("npm", "npm", "npm")},
	{ID: "flatpak", Description: "Sandboxed application runtime", Names: names("flatpak", "flatpak", "flatpak")},
	{ID: "zsh", Description: "Z shell", Names: names("zsh", "zsh", "zsh")},
	{ID: "zsh-common", Description: "Z shell common files", Names: names("zsh-common", "", "")},
	{ID: "vim", Description: "Vi improved", Names: names("vim", "vim", "vim")},
	{ID: "nano", Description: "Small text editor", Names: names("nano", "nano", "nano")},
	{ID: "build-essential", Description: "Compiler toolchain", Names: names("build-essential", "base-devel", "build-base")},
	{ID: "cmake", Description: "Build system generator", Names: names("cmake", "cmake", "cmake")},
	{ID: "gh", Description: "GitHub CLI", Names: names("gh", "github-cli", "github-cli")},
	{ID: "ripgrep", Description: "Recursive grep", Names: names("ripgrep", "ripgrep", "ripgrep")},
	{ID: "bat", Description: "cat with syntax highlighting", Names: names("bat", "bat", "bat")},
	{ID: "jq", Description: "JSON processor", Names: names("jq", "jq", "jq")},
	{ID: "yq", Description: "YAML processor", Names: names("yq", "go-yq", "yq")},
	{ID: "shellcheck", Description: "Shell script linter", Names: names("shellcheck", "shellcheck", "shellcheck")},
	{ID: "sqlite3", Description: "SQLite command line", Names: names("sqlite3", "sqlite", "sqlite")},
	{ID: "alacritty", Description: "GPU terminal emulator", Names: names("alacritty", "alacritty", "alacritty")},
	{ID: "net-tools", Description: "Legacy network tools", Names: names("net-tools", "net-tools", "net-tools")},
	{ID: "tailscale", Description: "Mesh VPN", Names: names("tailscale", "tailscale", "tailscale")},
	{ID: "docker", Description: "Docker engine (distribution build)", Names: names("docker.io", "docker", "docker")},
	{ID: "docker-ce", Description: "Docker engine (upstream)", Names: names("docker-ce", "", "")},
	{ID: "docker-ce-cli", Description: "Docker CLI (upstream)", Names: names("docker-ce-cli", "", "")},
	{ID: "containerd.io", Description: "containerd (upstream)", Names: names("containerd.io", "", "")},
	{ID: "podman-docker", Description: "Docker CLI emulation for podman", Names: names("podman-docker", "podman-docker", "")},
	{ID: "docker-compose", Description: "Multi-container orchestration", Names: names("docker-compose", "docker-compose", "docker-cli-compose")},
	{ID: "qemu-kvm", Description: "KVM virtualisation", Names: names("qemu-kvm", "qemu-full", "qemu-system-x86_64")},
	{ID: "virt-manager", Description: "Virtual machine manager", Names: names("virt-manager", "virt-manager", "virt-manager")},
	{ID: "cpufrequtils", Description: "CPU frequency tools", Names: names("cpufrequtils", "cpupower", "")},
	{ID: "lm-sensors", Description: "Hardware sensors", Names: names("lm-sensors", "lm_sensors", "lm-sensors")},
	{ID: "ffmpeg", Description: "Audio/video toolkit", Names: names("ffmpeg", "ffmpeg", "ffmpeg")},
	{ID: "git-lfs", Description: "Git large file storage", Names: names("git-lfs", "git-lfs", "git-lfs")},
	{ID: "firefox", Description: "Web browser", Names: names("firefox", "firefox", "firefox")},
	{ID: "nginx", Description: "HTTP server and reverse proxy", Names: names("nginx", "nginx", "nginx")},
	{ID: "postgresql", Description: "PostgreSQL server", Names: names("postgresql", "postgresql", "postgresql")},
	{ID: "redis", Description: "In-memory data store", Names: names("redis-server", "redis", "redis")},
	{ID: "prometheus", Description: "Metrics server", Names: names("prometheus", "prometheus", "prometheus")},
	{ID: "prometheus-node-exporter", Description: "Host metrics exporter", Names: names("prometheus-node-exporter", "prometheus-node-exporter", "prometheus-node-exporter")},
	{ID: "nvtop", Description: "GPU process monitor", Names: names("nvtop", "nvtop", "nvtop")},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(builtinEntries...)
	if err != nil {
		panic(err)
	}
	return c
}
