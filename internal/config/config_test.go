package config

import (
	"testing"
	"time"

	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
)

func TestDefault(t *testing.T) {
	cfg := Default("myproject")
	if cfg.Project != "myproject" {
		t.Errorf("Project = %q", cfg.Project)
	}
	if cfg.Jail.Prefix != "claw-" {
		t.Errorf("Prefix = %q", cfg.Jail.Prefix)
	}
	if cfg.Jail.Network != string(jail.NetworkNone) {
		t.Errorf("Network = %q, want none", cfg.Jail.Network)
	}
	if !cfg.Jail.ReadOnlyRoot {
		t.Error("default root should be read-only")
	}
	if cfg.Limits.IsZero() {
		t.Error("default config should carry resource limits")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default("roundtrip")
	cfg.SetupCommand = "pkg install -y git"
	cfg.Env = map[string]string{"LANG": "C.UTF-8"}
	cfg.HotWindow = 10 * time.Minute
	cfg.Mounts = []mount.Spec{{Source: "/var/cache/pkg", Target: "var/cache/pkg", ReadOnly: true}}

	if Exists(dir) {
		t.Fatal("Exists before Save")
	}
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists false after Save")
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Project != cfg.Project ||
		got.SetupCommand != cfg.SetupCommand ||
		got.HotWindow != cfg.HotWindow ||
		got.ZFS != cfg.ZFS {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
	if got.Env["LANG"] != "C.UTF-8" {
		t.Errorf("Env = %v", got.Env)
	}
	if len(got.Mounts) != 1 || got.Mounts[0] != cfg.Mounts[0] {
		t.Errorf("Mounts = %v", got.Mounts)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of uninitialized project should fail")
	}
}

func TestSpecMaterialization(t *testing.T) {
	cfg := Default("p")
	cfg.Jail.UserID = "1001"
	cfg.Jail.Params = []string{"allow.raw_sockets=1"}
	cfg.DNS = []string{"10.0.0.1"}

	spec := cfg.Spec("/home/alice/p", "/home/alice/p-agent", mount.AccessRW)
	if spec.Clone.Origin() != "zroot/clawjail/base@ready" {
		t.Errorf("Origin = %q", spec.Clone.Origin())
	}
	if spec.Prefix != "claw-" || spec.UserID != "1001" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.Network != jail.NetworkNone {
		t.Errorf("Network = %q", spec.Network)
	}
	if spec.WorkspaceDir != "/home/alice/p" ||
		spec.AgentWorkspaceDir != "/home/alice/p-agent" ||
		spec.WorkspaceAccess != mount.AccessRW {
		t.Errorf("workspace fields = %q %q %q",
			spec.WorkspaceDir, spec.AgentWorkspaceDir, spec.WorkspaceAccess)
	}
	if len(spec.ExtraJailParams) != 1 || len(spec.DNS) != 1 {
		t.Errorf("extras not carried: %+v", spec)
	}

	// Two materializations of the same config agree, so fingerprints do too.
	other := cfg.Spec("/home/alice/p", "/home/alice/p-agent", mount.AccessRW)
	if sandbox.Fingerprint(spec) != sandbox.Fingerprint(other) {
		t.Error("same config produced different fingerprints")
	}
}

func TestHotPolicy(t *testing.T) {
	tests := []struct {
		name   string
		window time.Duration
		want   time.Duration
	}{
		{"default", 0, sandbox.DefaultHotWindow},
		{"custom", 10 * time.Minute, 10 * time.Minute},
		{"disabled", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("p")
			cfg.HotWindow = tt.window
			if got := cfg.HotPolicy().Window; got != tt.want {
				t.Errorf("Window = %v, want %v", got, tt.want)
			}
		})
	}
}
