package resolver

import "github.com/unifikation/unify/pkg/catalog"

// Cost is the estimated footprint of installing one logical package.
type Cost struct {
	DiskMB  int
	Seconds int
}

// ConflictRule marks two logical packages as mutually exclusive. An empty
// Managers list applies the rule on every manager.
type ConflictRule struct {
	A, B     string
	Reason   string
	Managers []catalog.Manager
}

func (r ConflictRule) appliesTo(m catalog.Manager) bool {
	if len(r.Managers) == 0 {
		return true
	}
	for _, rm := range r.Managers {
		if rm == m {
			return true
		}
	}
	return false
}

// DefaultCosts is the built-in per-package cost table.
var DefaultCosts = map[string]Cost{
	"git":             {DiskMB: 35, Seconds: 20},
	"python3":         {DiskMB: 60, Seconds: 30},
	"pip":             {DiskMB: 15, Seconds: 15},
	"python3-pip":     {DiskMB: 15, Seconds: 15},
	"python3-dev":     {DiskMB: 40, Seconds: 20},
	"python3-venv":    {DiskMB: 5, Seconds: 10},
	"python3-all":     {DiskMB: 90, Seconds: 40},
	"curl":            {DiskMB: 2, Seconds: 5},
	"wget":            {DiskMB: 3, Seconds: 5},
	"ssh":             {DiskMB: 5, Seconds: 10},
	"sshd":            {DiskMB: 6, Seconds: 15},
	"openssh-server":  {DiskMB: 6, Seconds: 15},
	"tmux":            {DiskMB: 2, Seconds: 5},
	"htop":            {DiskMB: 1, Seconds: 5},
	"iftop":           {DiskMB: 1, Seconds: 5},
	"iotop":           {DiskMB: 1, Seconds: 5},
	"nodejs":          {DiskMB: 80, Seconds: 45},
	"npm":             {DiskMB: 40, Seconds: 30},
	"flatpak":         {DiskMB: 25, Seconds: 30},
	"zsh":             {DiskMB: 15, Seconds: 10},
	"zsh-common":      {DiskMB: 10, Seconds: 5},
	"vim":             {DiskMB: 35, Seconds: 10},
	"nano":            {DiskMB: 3, Seconds: 5},
	"build-essential": {DiskMB: 200, Seconds: 90},
	"cmake":           {DiskMB: 40, Seconds: 20},
	"gh":              {DiskMB: 45, Seconds: 15},
	"ripgrep":         {DiskMB: 5, Seconds: 5},
	"bat":             {DiskMB: 5, Seconds: 5},
	"jq":              {DiskMB: 1, Seconds: 5},
	"yq":              {DiskMB: 10, Seconds: 5},
	"shellcheck":      {DiskMB: 20, Seconds: 10},
	"sqlite3":         {DiskMB: 3, Seconds: 5},
	"alacritty":       {DiskMB: 15, Seconds: 15},
	"net-tools":       {DiskMB: 1, Seconds: 5},
	"tailscale":       {DiskMB: 50, Seconds: 30},
	"docker":          {DiskMB: 250, Seconds: 120},
	"docker-ce":       {DiskMB: 250, Seconds: 120},
	"docker-ce-cli":   {DiskMB: 100, Seconds: 45},
	"containerd.io":   {DiskMB: 120, Seconds: 45},
	"podman-docker":   {DiskMB: 5, Seconds: 20},
	"docker-compose":  {DiskMB: 60, Seconds: 20},
	"qemu-kvm":        {DiskMB: 300, Seconds: 120},
	"virt-manager":    {DiskMB: 80, Seconds: 60},
	"cpufrequtils":    {DiskMB: 1, Seconds: 5},
	"lm-sensors":      {DiskMB: 1, Seconds: 5},
	"ffmpeg":          {DiskMB: 120, Seconds: 60},
	"git-lfs":         {DiskMB: 10, Seconds: 10},
	"firefox":         {DiskMB: 250, Seconds: 60},
	"nginx":           {DiskMB: 5, Seconds: 15},
	"postgresql":      {DiskMB: 150, Seconds: 60},
	"redis":           {DiskMB: 10, Seconds: 15},
	"prometheus":      {DiskMB: 100, Seconds: 30},
}

// DefaultConflicts is the built-in table of mutually exclusive packages.
var DefaultConflicts = []ConflictRule{
	{A: "docker", B: "docker-ce", Reason: "distribution and upstream docker engines overlap"},
	{A: "docker", B: "podman-docker", Reason: "podman-docker provides the docker command"},
	{A: "docker-ce", B: "podman-docker", Reason: "podman-docker provides the docker command", Managers: []catalog.Manager{catalog.ManagerApt}},
	{A: "docker-ce-cli", B: "podman-docker", Reason: "both install /usr/bin/docker", Managers: []catalog.Manager{catalog.ManagerApt}},
}
