package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/rctl"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	"github.com/KLDTECHNIX/openclaw/internal/zfs"
)

const (
	Dir          = ".clawjail"
	ConfigFile   = "config.yaml"
	RegistryFile = "registry.json"
)

type Config struct {
	Version string `yaml:"version"`
	Project string `yaml:"project"`

	ZFS       ZFS       `yaml:"zfs"`
	Jail      Jail      `yaml:"jail"`
	Workspace Workspace `yaml:"workspace"`

	Limits rctl.Limits  `yaml:"limits,omitempty"`
	Mounts []mount.Spec `yaml:"mounts,omitempty"`

	Env          map[string]string `yaml:"env,omitempty"`
	SetupCommand string            `yaml:"setup_command,omitempty"`
	DNS          []string          `yaml:"dns,omitempty"`
	Hosts        []string          `yaml:"hosts,omitempty"`

	// HotWindow defers destroying a drifted sandbox that was used this
	// recently. Zero means the default; negative disables the deferral.
	HotWindow time.Duration `yaml:"hot_window,omitempty"`
}

type ZFS struct {
	BaseDataset  string `yaml:"base_dataset"`
	BaseSnapshot string `yaml:"base_snapshot"`
	CloneParent  string `yaml:"clone_parent"`
}

type Jail struct {
	Prefix       string   `yaml:"prefix"`
	Workdir      string   `yaml:"workdir"`
	AgentDir     string   `yaml:"agent_dir,omitempty"`
	ReadOnlyRoot bool     `yaml:"read_only_root"`
	Network      string   `yaml:"network"` // inherit | isolated-stack | none
	DevfsRuleset int      `yaml:"devfs_ruleset"`
	UserID       string   `yaml:"user_id,omitempty"`
	Tmpfs        []string `yaml:"tmpfs,omitempty"`
	Params       []string `yaml:"params,omitempty"` // raw extra jail parameters
}

type Workspace struct {
	Dir      string `yaml:"dir"`
	AgentDir string `yaml:"agent_dir,omitempty"`
	Access   string `yaml:"access"` // none | ro | rw
	PerScope bool   `yaml:"per_scope,omitempty"`
}

// Default returns the config scaffolded by `clawjail init`.
func Default(project string) *Config {
	return &Config{
		Version: "1",
		Project: project,
		ZFS: ZFS{
			BaseDataset:  "zroot/clawjail/base",
			BaseSnapshot: "ready",
			CloneParent:  "zroot/clawjail/sandboxes",
		},
		Jail: Jail{
			Prefix:       "claw-",
			Workdir:      "/workspace",
			ReadOnlyRoot: true,
			Network:      string(jail.NetworkNone),
			DevfsRuleset: 4, // devfsrules_jail
			Tmpfs:        []string{"/tmp", "/var/tmp"},
		},
		Workspace: Workspace{
			Access:   string(mount.AccessRW),
			PerScope: true,
		},
		Limits: rctl.Limits{
			MaxProc:    64,
			MemoryMB:   1024,
			CPUPercent: 100,
		},
	}
}

// Spec materializes the sandbox spec this config describes. Workspace paths
// come from the workspace resolver, not from here.
func (c *Config) Spec(workspaceDir, agentWorkspaceDir string, access mount.Access) sandbox.Spec {
	return sandbox.Spec{
		Clone: zfs.CloneSpec{
			BaseDataset:  c.ZFS.BaseDataset,
			BaseSnapshot: c.ZFS.BaseSnapshot,
			CloneParent:  c.ZFS.CloneParent,
		},
		Prefix:            c.Jail.Prefix,
		Workdir:           c.Jail.Workdir,
		AgentDir:          c.Jail.AgentDir,
		ReadOnlyRoot:      c.Jail.ReadOnlyRoot,
		TmpfsPaths:        c.Jail.Tmpfs,
		Network:           jail.NetworkMode(c.Jail.Network),
		UserID:            c.Jail.UserID,
		DevfsRuleset:      c.Jail.DevfsRuleset,
		Env:               c.Env,
		SetupCommand:      c.SetupCommand,
		Limits:            c.Limits,
		ExtraMounts:       c.Mounts,
		ExtraJailParams:   c.Jail.Params,
		DNS:               c.DNS,
		Hosts:             c.Hosts,
		WorkspaceDir:      workspaceDir,
		AgentWorkspaceDir: agentWorkspaceDir,
		WorkspaceAccess:   access,
	}
}

// HotPolicy builds the reconciler's hot-window policy from the config.
func (c *Config) HotPolicy() sandbox.HotPolicy {
	p := sandbox.DefaultHotPolicy()
	if c.HotWindow < 0 {
		p.Window = 0
	} else if c.HotWindow > 0 {
		p.Window = c.HotWindow
	}
	return p
}

// Load reads config from .clawjail/config.yaml relative to projectDir.
func Load(projectDir string) (*Config, error) {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes config to .clawjail/config.yaml relative to projectDir.
func Save(projectDir string, cfg *Config) error {
	dir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, ConfigFile)
	return os.WriteFile(path, data, 0o644)
}

// RegistryPath returns where the sandbox registry lives for a project.
func RegistryPath(projectDir string) string {
	return filepath.Join(projectDir, Dir, RegistryFile)
}

// Exists returns true if .clawjail/config.yaml exists.
func Exists(projectDir string) bool {
	path := filepath.Join(projectDir, Dir, ConfigFile)
	_, err := os.Stat(path)
	return err == nil
}
