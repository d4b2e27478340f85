// Package mount composes the filesystem view inside a sandbox root: devfs,
// tmpfs scratch space, nullfs workspace binds, extra binds, and host file
// injection (DNS resolvers, hosts entries).
//
// Planner operations are reproducible: applying a plan against a root that
// is already correctly mounted is a no-op, not an error.
package mount

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/KLDTECHNIX/openclaw/internal/hostcmd"
)

// Access is the workspace filesystem permission level.
type Access string

const (
	AccessNone Access = "none" // workspace not mounted
	AccessRO   Access = "ro"   // read-only
	AccessRW   Access = "rw"   // read-write
)

// Spec is an arbitrary extra bind mount. Target is relative to the sandbox
// root.
type Spec struct {
	Source   string `yaml:"source" json:"source"`
	Target   string `yaml:"target" json:"target"`
	ReadOnly bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// Plan describes everything to mount and inject under one sandbox root.
type Plan struct {
	DevfsRuleset int      // devfs(8) ruleset number restricting device nodes
	TmpfsPaths   []string // scratch mounts, relative to the root
	Workdir      string   // where the primary workspace lands, e.g. /workspace
	AgentDir     string   // where the agent workspace lands when distinct, e.g. /agent

	WorkspaceDir      string // host path of the primary workspace
	AgentWorkspaceDir string // host path of the agent workspace
	WorkspaceAccess   Access

	ExtraMounts []Spec
	DNS         []string // resolv.conf nameservers
	Hosts       []string // extra /etc/hosts lines, appended
}

// Planner performs mounts via the host mount tools.
type Planner struct {
	run    *hostcmd.Runner
	logger *slog.Logger
}

func NewPlanner(run *hostcmd.Runner, logger *slog.Logger) *Planner {
	return &Planner{run: run, logger: logger}
}

// Apply builds the filesystem view under root in a fixed order: device
// nodes, scratch space, workspace binds, extra binds, then host file
// injection. Already-mounted targets are skipped.
func (p *Planner) Apply(ctx context.Context, root string, plan Plan) error {
	table, err := p.mountTable(ctx)
	if err != nil {
		return err
	}

	if err := p.devfs(ctx, root, plan.DevfsRuleset, table); err != nil {
		return err
	}

	for _, rel := range plan.TmpfsPaths {
		if err := p.tmpfs(ctx, filepath.Join(root, rel), table); err != nil {
			return err
		}
	}

	if err := p.workspaceBinds(ctx, root, plan, table); err != nil {
		return err
	}

	for _, extra := range plan.ExtraMounts {
		target := filepath.Join(root, extra.Target)
		if err := p.nullfs(ctx, extra.Source, target, extra.ReadOnly, table); err != nil {
			return err
		}
	}

	if len(plan.DNS) > 0 {
		if err := writeResolvConf(root, plan.DNS); err != nil {
			return err
		}
	}
	if len(plan.Hosts) > 0 {
		if err := appendHosts(root, plan.Hosts); err != nil {
			return err
		}
	}
	return nil
}

// workspaceBinds mounts the primary workspace and, when it differs from the
// primary, the agent workspace. The read-only flag only applies when both
// point at the same host directory.
func (p *Planner) workspaceBinds(ctx context.Context, root string, plan Plan, table map[string]bool) error {
	if plan.WorkspaceAccess == AccessNone || plan.WorkspaceDir == "" {
		return nil
	}

	same := plan.AgentWorkspaceDir == "" || plan.AgentWorkspaceDir == plan.WorkspaceDir
	readOnly := plan.WorkspaceAccess == AccessRO && same

	if err := p.nullfs(ctx, plan.WorkspaceDir, filepath.Join(root, plan.Workdir), readOnly, table); err != nil {
		return err
	}
	if !same {
		agentDir := plan.AgentDir
		if agentDir == "" {
			agentDir = "/agent"
		}
		if err := p.nullfs(ctx, plan.AgentWorkspaceDir, filepath.Join(root, agentDir), false, table); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) devfs(ctx context.Context, root string, ruleset int, table map[string]bool) error {
	target := filepath.Join(root, "dev")
	if table[target] {
		return nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	args := []string{"-t", "devfs"}
	if ruleset > 0 {
		args = append(args, "-o", "ruleset="+strconv.Itoa(ruleset))
	}
	args = append(args, "devfs", target)
	if _, err := p.run.Run(ctx, "mount", args...); err != nil {
		return fmt.Errorf("mounting devfs at %s: %w", target, err)
	}
	table[target] = true
	return nil
}

func (p *Planner) tmpfs(ctx context.Context, target string, table map[string]bool) error {
	if table[target] {
		return nil
	}
	if err := os.MkdirAll(target, 0o1777); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := p.run.Run(ctx, "mount", "-t", "tmpfs", "tmpfs", target); err != nil {
		return fmt.Errorf("mounting tmpfs at %s: %w", target, err)
	}
	table[target] = true
	return nil
}

func (p *Planner) nullfs(ctx context.Context, source, target string, readOnly bool, table map[string]bool) error {
	if table[target] {
		return nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	args := []string{"-t", "nullfs"}
	if readOnly {
		args = append(args, "-o", "ro")
	}
	args = append(args, source, target)
	if _, err := p.run.Run(ctx, "mount", args...); err != nil {
		return fmt.Errorf("binding %s to %s: %w", source, target, err)
	}
	table[target] = true
	return nil
}

// MountedUnder returns the mount points strictly below root, deepest path
// first, so stacked mounts can be unmounted in order.
func (p *Planner) MountedUnder(ctx context.Context, root string) ([]string, error) {
	table, err := p.mountTable(ctx)
	if err != nil {
		return nil, err
	}
	return mountedUnder(table, root), nil
}

// mountedUnder filters the table to mount points strictly below root and
// orders them deepest first, so a child is always unmounted before its
// parent.
func mountedUnder(table map[string]bool, root string) []string {
	prefix := strings.TrimSuffix(root, "/") + "/"
	var under []string
	for target := range table {
		if strings.HasPrefix(target, prefix) {
			under = append(under, target)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(under)))
	return under
}

// UnmountAll force-unmounts everything below root, deepest first. Each
// unmount is best-effort; the paths that could not be unmounted are
// returned with the last error.
func (p *Planner) UnmountAll(ctx context.Context, root string) ([]string, error) {
	targets, err := p.MountedUnder(ctx, root)
	if err != nil {
		return nil, err
	}
	var stuck []string
	var lastErr error
	for _, target := range targets {
		if _, err := p.run.Run(ctx, "umount", "-f", target); err != nil {
			p.logger.Warn("unmount failed",
				slog.String("target", target),
				slog.String("error", err.Error()),
			)
			stuck = append(stuck, target)
			lastErr = err
		}
	}
	return stuck, lastErr
}

// mountTable reads the live mount table (mount -p) keyed by mount point.
func (p *Planner) mountTable(ctx context.Context) (map[string]bool, error) {
	out, err := p.run.Run(ctx, "mount", "-p")
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	return parseMountTable(out), nil
}

// parseMountTable parses fstab-style `mount -p` output. The second
// whitespace-separated field is the mount point.
func parseMountTable(out string) map[string]bool {
	table := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			table[fields[1]] = true
		}
	}
	return table
}

// writeResolvConf replaces root/etc/resolv.conf with the given nameservers.
func writeResolvConf(root string, servers []string) error {
	etc := filepath.Join(root, "etc")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", etc, err)
	}
	var b strings.Builder
	for _, s := range servers {
		b.WriteString("nameserver " + s + "\n")
	}
	path := filepath.Join(etc, "resolv.conf")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// appendHosts appends entries to root/etc/hosts, keeping whatever the base
// image already has and skipping lines already present.
func appendHosts(root string, entries []string) error {
	etc := filepath.Join(root, "etc")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", etc, err)
	}
	path := filepath.Join(etc, "hosts")
	existing, _ := os.ReadFile(path)
	content := string(existing)

	present := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		present[strings.TrimSpace(line)] = true
	}
	var toAdd []string
	for _, entry := range entries {
		if entry != "" && !present[strings.TrimSpace(entry)] {
			toAdd = append(toAdd, entry)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(toAdd, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
