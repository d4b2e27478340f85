package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KLDTECHNIX/openclaw/internal/config"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
)

func TestResolveNoWorkspace(t *testing.T) {
	cfg := config.Default("p")
	cfg.Workspace.Dir = ""

	paths, err := Resolve(t.TempDir(), cfg, sandbox.ScopeKey{Kind: sandbox.ScopeShared})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if paths.Dir != "" || paths.Access != mount.AccessNone {
		t.Errorf("paths = %+v, want no mount", paths)
	}
}

func TestResolvePerScope(t *testing.T) {
	projectDir := t.TempDir()
	cfg := config.Default("p")
	cfg.Workspace.Dir = "work"
	cfg.Workspace.PerScope = true

	key := sandbox.ScopeKey{Kind: sandbox.ScopeSession, ID: "abc"}
	paths, err := Resolve(projectDir, cfg, key)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(projectDir, "work", "session-abc")
	if paths.Dir != want {
		t.Errorf("Dir = %q, want %q", paths.Dir, want)
	}
	if info, err := os.Stat(paths.Dir); err != nil || !info.IsDir() {
		t.Errorf("per-scope dir not created: %v", err)
	}
	if paths.AgentDir != paths.Dir {
		t.Errorf("AgentDir = %q, want the primary dir", paths.AgentDir)
	}
	if paths.Access != mount.AccessRW {
		t.Errorf("Access = %q", paths.Access)
	}
}

func TestResolveSharedSkipsPerScope(t *testing.T) {
	projectDir := t.TempDir()
	cfg := config.Default("p")
	cfg.Workspace.Dir = "work"
	cfg.Workspace.PerScope = true

	paths, err := Resolve(projectDir, cfg, sandbox.ScopeKey{Kind: sandbox.ScopeShared})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if paths.Dir != filepath.Join(projectDir, "work") {
		t.Errorf("Dir = %q, shared scope should use the base dir", paths.Dir)
	}
}

func TestResolveDistinctAgentDir(t *testing.T) {
	projectDir := t.TempDir()
	cfg := config.Default("p")
	cfg.Workspace.Dir = "work"
	cfg.Workspace.AgentDir = "agent-work"
	cfg.Workspace.PerScope = false
	cfg.Workspace.Access = string(mount.AccessRO)

	paths, err := Resolve(projectDir, cfg, sandbox.ScopeKey{Kind: sandbox.ScopeAgent, ID: "r"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if paths.AgentDir != filepath.Join(projectDir, "agent-work") {
		t.Errorf("AgentDir = %q", paths.AgentDir)
	}
	if paths.Access != mount.AccessRO {
		t.Errorf("Access = %q", paths.Access)
	}
}

func TestResolveAbsoluteDir(t *testing.T) {
	abs := t.TempDir()
	cfg := config.Default("p")
	cfg.Workspace.Dir = abs
	cfg.Workspace.PerScope = false

	paths, err := Resolve(t.TempDir(), cfg, sandbox.ScopeKey{Kind: sandbox.ScopeShared})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if paths.Dir != abs {
		t.Errorf("Dir = %q, want %q", paths.Dir, abs)
	}
}

func TestRemovePerScopeOnly(t *testing.T) {
	projectDir := t.TempDir()
	cfg := config.Default("p")
	cfg.Workspace.Dir = "work"
	cfg.Workspace.PerScope = true

	key := sandbox.ScopeKey{Kind: sandbox.ScopeSession, ID: "abc"}
	paths, err := Resolve(projectDir, cfg, key)
	if err != nil {
		t.Fatal(err)
	}

	if err := Remove(projectDir, cfg, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(paths.Dir); !os.IsNotExist(err) {
		t.Error("per-scope dir survived Remove")
	}

	// Shared scope is never removed.
	shared, err := Resolve(projectDir, cfg, sandbox.ScopeKey{Kind: sandbox.ScopeShared})
	if err != nil {
		t.Fatal(err)
	}
	if err := Remove(projectDir, cfg, sandbox.ScopeKey{Kind: sandbox.ScopeShared}); err != nil {
		t.Fatalf("Remove shared: %v", err)
	}
	if _, err := os.Stat(shared.Dir); err != nil {
		t.Error("shared workspace dir was removed")
	}
}
