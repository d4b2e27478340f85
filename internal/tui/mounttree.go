package tui

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/KLDTECHNIX/openclaw/internal/mount"
	"github.com/charmbracelet/lipgloss"
)

var (
	mountRwStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC00"))
	mountRoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	mountKindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5599FF"))
	mountPathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	mountDirStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5599FF")).Bold(true)
	mountTreeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	mountSourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	mountHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700"))
)

// mountEntry is one mount point inside the jail root.
type mountEntry struct {
	target string // absolute path inside the jail
	kind   string // "devfs", "tmpfs", "nullfs"
	source string // host path, nullfs only
	ro     bool
}

type mountNode struct {
	name     string
	children map[string]*mountNode
	leaves   []mountEntry
}

func newMountNode(name string) *mountNode {
	return &mountNode{name: name, children: make(map[string]*mountNode)}
}

// planEntries flattens a mount plan into the entries that Apply would
// create, in mount order.
func planEntries(plan mount.Plan) []mountEntry {
	var entries []mountEntry
	entries = append(entries, mountEntry{target: "/dev", kind: "devfs"})
	for _, rel := range plan.TmpfsPaths {
		entries = append(entries, mountEntry{target: "/" + strings.TrimPrefix(rel, "/"), kind: "tmpfs"})
	}
	if plan.WorkspaceDir != "" && plan.WorkspaceAccess != mount.AccessNone {
		same := plan.AgentWorkspaceDir == "" || plan.AgentWorkspaceDir == plan.WorkspaceDir
		entries = append(entries, mountEntry{
			target: plan.Workdir,
			kind:   "nullfs",
			source: plan.WorkspaceDir,
			ro:     plan.WorkspaceAccess == mount.AccessRO && same,
		})
		if !same {
			agentDir := plan.AgentDir
			if agentDir == "" {
				agentDir = "/agent"
			}
			entries = append(entries, mountEntry{
				target: agentDir,
				kind:   "nullfs",
				source: plan.AgentWorkspaceDir,
			})
		}
	}
	for _, extra := range plan.ExtraMounts {
		entries = append(entries, mountEntry{
			target: "/" + strings.TrimPrefix(extra.Target, "/"),
			kind:   "nullfs",
			source: extra.Source,
			ro:     extra.ReadOnly,
		})
	}
	return entries
}

// buildMountTree renders the mount plan as a file tree rooted at the jail's
// filesystem root.
func buildMountTree(plan mount.Plan) string {
	entries := planEntries(plan)
	if len(entries) == 0 {
		return "No mounts"
	}

	root := newMountNode("")
	for _, e := range entries {
		parts := strings.Split(strings.Trim(path.Clean(e.target), "/"), "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			if _, ok := node.children[dir]; !ok {
				node.children[dir] = newMountNode(dir)
			}
			node = node.children[dir]
		}
		node.leaves = append(node.leaves, e)
	}

	var b strings.Builder
	b.WriteString(mountHeaderStyle.Render("/"))
	b.WriteString("\n")
	renderMountTree(&b, root, "")
	return b.String()
}

func renderMountTree(b *strings.Builder, node *mountNode, prefix string) {
	var dirNames []string
	for name := range node.children {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	type item struct {
		isDir bool
		name  string
	}
	items := make([]item, 0, len(dirNames)+len(node.leaves))
	for _, d := range dirNames {
		items = append(items, item{true, d})
	}
	for _, e := range node.leaves {
		items = append(items, item{false, path.Base(e.target)})
	}

	for i, it := range items {
		isLast := i == len(items)-1
		connector := "├── "
		childPrefix := "│   "
		if isLast {
			connector = "└── "
			childPrefix = "    "
		}

		if it.isDir {
			b.WriteString(mountTreeStyle.Render(prefix+connector) + mountDirStyle.Render(it.name+"/") + "\n")
			renderMountTree(b, node.children[it.name], prefix+childPrefix)
		} else {
			var entry mountEntry
			for _, e := range node.leaves {
				if path.Base(e.target) == it.name {
					entry = e
					break
				}
			}
			renderMountEntry(b, prefix+connector, entry)
		}
	}
}

func renderMountEntry(b *strings.Builder, prefix string, entry mountEntry) {
	line := mountTreeStyle.Render(prefix) + mountPathStyle.Render(path.Base(entry.target))
	line += " " + mountKindStyle.Render(entry.kind)
	if entry.kind == "nullfs" {
		if entry.ro {
			line += " " + mountRoStyle.Render("ro")
		} else {
			line += " " + mountRwStyle.Render("rw")
		}
		line += "  " + mountSourceStyle.Render(fmt.Sprintf("← %s", entry.source))
	}
	b.WriteString(line + "\n")
}
