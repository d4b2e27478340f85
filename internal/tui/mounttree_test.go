package tui

import (
	"testing"

	"github.com/KLDTECHNIX/openclaw/internal/mount"
)

func TestPlanEntries(t *testing.T) {
	plan := mount.Plan{
		DevfsRuleset:    4,
		TmpfsPaths:      []string{"tmp", "var/tmp"},
		Workdir:         "/workspace",
		WorkspaceDir:    "/home/alice/proj",
		WorkspaceAccess: mount.AccessRO,
		ExtraMounts:     []mount.Spec{{Source: "/var/cache/pkg", Target: "var/cache/pkg", ReadOnly: true}},
	}

	entries := planEntries(plan)
	targets := make([]string, len(entries))
	for i, e := range entries {
		targets[i] = e.target
	}
	want := []string{"/dev", "/tmp", "/var/tmp", "/workspace", "/var/cache/pkg"}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", targets, want)
		}
	}

	// Sole workspace with ro access mounts read-only.
	for _, e := range entries {
		if e.target == "/workspace" && !e.ro {
			t.Error("workspace should be read-only")
		}
	}
}

func TestPlanEntriesDistinctAgentWorkspace(t *testing.T) {
	plan := mount.Plan{
		Workdir:           "/workspace",
		WorkspaceDir:      "/home/alice/proj",
		AgentWorkspaceDir: "/home/alice/proj-agent",
		WorkspaceAccess:   mount.AccessRO,
	}

	entries := planEntries(plan)
	var workspace, agent *mountEntry
	for i := range entries {
		switch entries[i].target {
		case "/workspace":
			workspace = &entries[i]
		case "/agent":
			agent = &entries[i]
		}
	}
	if workspace == nil || agent == nil {
		t.Fatalf("entries = %+v", entries)
	}
	// Split workspaces: the primary stays writable despite ro access, the
	// agent copy is always writable.
	if workspace.ro {
		t.Error("primary workspace read-only despite a distinct agent workspace")
	}
	if agent.ro {
		t.Error("agent workspace read-only")
	}
	if agent.source != "/home/alice/proj-agent" {
		t.Errorf("agent source = %q", agent.source)
	}
}

func TestPlanEntriesNoWorkspace(t *testing.T) {
	entries := planEntries(mount.Plan{WorkspaceAccess: mount.AccessNone, WorkspaceDir: "/x", Workdir: "/workspace"})
	for _, e := range entries {
		if e.target == "/workspace" {
			t.Error("workspace mounted despite access=none")
		}
	}
}
