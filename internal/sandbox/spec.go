// Package sandbox reconciles per-agent jail sandboxes: given a logical scope
// and a desired configuration it reuses, recreates, or provisions the
// backing ZFS clone, mounts, resource rules, and jail, and records the
// outcome in a persistent registry.
package sandbox

import (
	"fmt"
	"strings"

	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/rctl"
	"github.com/KLDTECHNIX/openclaw/internal/zfs"
)

// ScopeKind determines sandbox reuse granularity.
type ScopeKind string

const (
	ScopeSession ScopeKind = "session" // one sandbox per session (max isolation)
	ScopeAgent   ScopeKind = "agent"   // shared sandbox per agent
	ScopeShared  ScopeKind = "shared"  // one sandbox for everything
)

// ScopeKey is the logical identity a sandbox is provisioned for.
type ScopeKey struct {
	Kind ScopeKind
	ID   string // session or agent identifier; empty for shared
}

func (k ScopeKey) String() string {
	if k.Kind == ScopeShared || k.ID == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.ID
}

// ParseScopeKey parses "session:<id>", "agent:<id>", or "shared".
func ParseScopeKey(s string) (ScopeKey, error) {
	kind, id, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch ScopeKind(kind) {
	case ScopeShared:
		return ScopeKey{Kind: ScopeShared}, nil
	case ScopeSession, ScopeAgent:
		if id == "" {
			return ScopeKey{}, fmt.Errorf("scope %q requires an identifier", kind)
		}
		return ScopeKey{Kind: ScopeKind(kind), ID: id}, nil
	default:
		return ScopeKey{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}

// Spec is the full desired configuration of one sandbox. It is immutable per
// call; every field here participates in the config fingerprint.
type Spec struct {
	Clone zfs.CloneSpec `json:"clone"`

	Prefix       string            `json:"prefix"`    // unit-name prefix, e.g. "claw-"
	Workdir      string            `json:"workdir"`   // working directory inside the jail
	AgentDir     string            `json:"agent_dir"` // agent workspace target when distinct
	ReadOnlyRoot bool              `json:"read_only_root"`
	TmpfsPaths   []string          `json:"tmpfs_paths"`
	Network      jail.NetworkMode  `json:"network"`
	UserID       string            `json:"user_id"` // optional fixed uid for exec
	DevfsRuleset int               `json:"devfs_ruleset"`
	Env          map[string]string `json:"env"`
	SetupCommand string            `json:"setup_command"` // run inside the jail after create

	Limits          rctl.Limits  `json:"limits"`
	ExtraMounts     []mount.Spec `json:"extra_mounts"`
	ExtraJailParams []string     `json:"extra_jail_params"`
	DNS             []string     `json:"dns"`
	Hosts           []string     `json:"hosts"`

	// Supplied by the workspace resolver; part of the fingerprint because
	// the same spec mounted against different host paths is a different
	// sandbox from the caller's point of view.
	WorkspaceDir      string       `json:"workspace_dir"`
	AgentWorkspaceDir string       `json:"agent_workspace_dir"`
	WorkspaceAccess   mount.Access `json:"workspace_access"`
}

// MountPlan renders the spec's mount composition for a given root.
func (s Spec) MountPlan() mount.Plan {
	workdir := s.Workdir
	if workdir == "" {
		workdir = "/workspace"
	}
	return mount.Plan{
		DevfsRuleset:      s.DevfsRuleset,
		TmpfsPaths:        s.TmpfsPaths,
		Workdir:           workdir,
		AgentDir:          s.AgentDir,
		WorkspaceDir:      s.WorkspaceDir,
		AgentWorkspaceDir: s.AgentWorkspaceDir,
		WorkspaceAccess:   s.WorkspaceAccess,
		ExtraMounts:       s.ExtraMounts,
		DNS:               s.DNS,
		Hosts:             s.Hosts,
	}
}

// JailOptions renders the spec's jail creation parameters.
func (s Spec) JailOptions() jail.CreateOptions {
	return jail.CreateOptions{
		Network:      s.Network,
		ReadOnlyRoot: s.ReadOnlyRoot,
		ExtraParams:  s.ExtraJailParams,
	}
}
