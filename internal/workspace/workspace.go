// Package workspace resolves which host directories a sandbox gets to see.
// The reconciler does not decide this; it only mounts what the resolver
// hands it.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KLDTECHNIX/openclaw/internal/config"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
)

// Paths is what the resolver supplies for one scope key.
type Paths struct {
	Dir      string // primary workspace on the host
	AgentDir string // agent workspace; equals Dir unless configured apart
	Access   mount.Access
}

// Resolve maps a scope key to its host workspace directories, creating a
// per-scope directory when the project is configured that way. With no
// workspace dir configured the sandbox simply gets no workspace mount.
func Resolve(projectDir string, cfg *config.Config, key sandbox.ScopeKey) (Paths, error) {
	access := mount.Access(cfg.Workspace.Access)
	if access == "" {
		access = mount.AccessRW
	}

	dir := cfg.Workspace.Dir
	if dir == "" {
		return Paths{Access: mount.AccessNone}, nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectDir, dir)
	}

	if cfg.Workspace.PerScope && key.Kind != sandbox.ScopeShared {
		dir = filepath.Join(dir, sandbox.Slug(key.String()))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating workspace dir: %w", err)
	}

	agentDir := cfg.Workspace.AgentDir
	if agentDir == "" {
		agentDir = dir
	} else if !filepath.IsAbs(agentDir) {
		agentDir = filepath.Join(projectDir, agentDir)
	}

	return Paths{Dir: dir, AgentDir: agentDir, Access: access}, nil
}

// Remove deletes a per-scope workspace directory. Shared and fixed
// workspaces are left alone.
func Remove(projectDir string, cfg *config.Config, key sandbox.ScopeKey) error {
	if !cfg.Workspace.PerScope || key.Kind == sandbox.ScopeShared || cfg.Workspace.Dir == "" {
		return nil
	}
	dir := cfg.Workspace.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectDir, dir)
	}
	return os.RemoveAll(filepath.Join(dir, sandbox.Slug(key.String())))
}
