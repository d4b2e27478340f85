package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	// Header — always shown
	title := "clawjail v0.1.0"
	project := scopeStyle.Render(m.cfg.Project)
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(project) - 4
	if gap < 1 {
		gap = 1
	}
	header := headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + project)

	if len(m.rows) == 0 {
		return m.renderEmptyState(header)
	}

	return m.renderSplitView(header)
}

func (m model) renderEmptyState(header string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(emptyStyle.Render("No sandboxes. Press / and type ensure <scope> to provision one."))
	b.WriteString("\n\n")

	if m.commanding {
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	} else {
		b.WriteString(hotkeysStyle.Render("[/] command  [?] help  [q] quit"))
	}
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	// Status message
	m.renderStatusAndInput(&b)

	// Help overlay
	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}

	return b.String()
}

func (m model) renderSplitView(header string) string {
	var b strings.Builder

	// Header
	b.WriteString(header)
	b.WriteString("\n")

	// Sandbox list — one line per jail
	for i, r := range m.rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}

	// Divider
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	// Detail pane — fill remaining vertical space
	footerLines := 4 // hotkeys + divider + status + possible input
	if m.commanding {
		footerLines++
	}
	detailHeight := max(3, m.height-1-len(m.rows)-1-1-footerLines)

	b.WriteString(m.renderDetail(detailHeight))

	// Bottom divider
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	// Hotkeys
	if m.commanding {
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	} else if m.confirmDestroy {
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Destroy %s? Press x again to confirm, any other key to cancel", m.confirmDestroyKey)))
	} else {
		b.WriteString(hotkeysStyle.Render("[↑↓] select  [enter] connect  [x] destroy  [r] recreate  [/] command  [?] help"))
	}
	b.WriteString("\n")

	// Status message and input
	m.renderStatusAndInput(&b)

	// Help overlay
	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}

	return b.String()
}

func (m model) renderRow(index int, r row) string {
	cursor := "  "
	nStyle := nameStyle
	if index == m.cursor {
		cursor = "▸ "
		nStyle = selectedNameStyle
	}

	icon, iStyle := stateIcon(r)
	status := iStyle.Render(icon)
	name := nStyle.Render(r.info.Entry.UnitName)

	parts := []string{fmt.Sprintf("  %s%s %s", cursor, status, name)}
	parts = append(parts, scopeStyle.Render(r.info.Entry.ScopeKey))
	if r.drift {
		parts = append(parts, driftStyle.Render("drift"))
	}

	return strings.Join(parts, "  ")
}

// stateIcon returns the status icon and style for a sandbox row.
func stateIcon(r row) (string, lipgloss.Style) {
	switch {
	case r.info.State.Running:
		return "●", statusRunning
	case r.info.State.Exists:
		return "◍", statusOther
	default:
		return "○", statusAbsent
	}
}

// renderDetail shows the selected sandbox: registry metadata, limits, and
// the mount tree its spec produces.
func (m model) renderDetail(height int) string {
	var b strings.Builder

	pad := func() string {
		lines := strings.Count(b.String(), "\n")
		for i := lines; i < height; i++ {
			b.WriteString("\n")
		}
		return b.String()
	}

	if m.cursor >= len(m.rows) {
		b.WriteString(detailEmptyStyle.Render("No sandbox selected"))
		b.WriteString("\n")
		return pad()
	}

	r := m.rows[m.cursor]
	entry := r.info.Entry

	field := func(label, value string) {
		b.WriteString("  ")
		b.WriteString(detailLabelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteString("\n")
	}

	field("origin", entry.Origin)
	field("dataset", r.spec.Clone.Dataset(entry.UnitName))
	field("network", string(r.spec.Network))
	if !r.spec.Limits.IsZero() {
		var lim []string
		if r.spec.Limits.MaxProc > 0 {
			lim = append(lim, fmt.Sprintf("maxproc=%d", r.spec.Limits.MaxProc))
		}
		if r.spec.Limits.MemoryMB > 0 {
			lim = append(lim, fmt.Sprintf("mem=%dM", r.spec.Limits.MemoryMB))
		}
		if r.spec.Limits.CPUPercent > 0 {
			lim = append(lim, fmt.Sprintf("cpu=%d%%", r.spec.Limits.CPUPercent))
		}
		if r.spec.Limits.OpenFiles > 0 {
			lim = append(lim, fmt.Sprintf("files=%d", r.spec.Limits.OpenFiles))
		}
		field("limits", strings.Join(lim, " "))
	}
	fingerprint := entry.Fingerprint
	if r.drift {
		fingerprint += "  " + driftStyle.Render("(config changed, recreate to apply)")
	}
	field("fingerprint", fingerprint)
	field("last used", entry.LastUsedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(buildMountTree(r.spec.MountPlan()), "\n"), "\n") {
		if strings.Count(b.String(), "\n") >= height {
			break
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	return pad()
}

func (m model) renderStatusAndInput(b *strings.Builder) {
	if m.busy != "" {
		b.WriteString(messageStyle.Render(fmt.Sprintf("[%s]", m.busy)))
		b.WriteString("\n")
	} else if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	if m.commanding {
		b.WriteString("  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
}

func (m model) renderHelpOverlay(base string) string {
	help := strings.Join([]string{
		helpHeaderStyle.Render("Navigation"),
		helpKeyStyle.Render("  ↑/k  ↓/j") + helpDescStyle.Render("   Select sandbox"),
		helpKeyStyle.Render("  Enter") + helpDescStyle.Render("       Connect (shell in jail)"),
		"",
		helpHeaderStyle.Render("Actions"),
		helpKeyStyle.Render("  x") + helpDescStyle.Render("           Destroy selected sandbox"),
		helpKeyStyle.Render("  r") + helpDescStyle.Render("           Recreate selected sandbox"),
		"",
		helpHeaderStyle.Render("Commands"),
		helpKeyStyle.Render("  /") + helpDescStyle.Render("           Open command bar"),
		helpDescStyle.Render("  /ensure <scope>"),
		helpDescStyle.Render("  /exec <scope> <command>"),
		helpDescStyle.Render("  /destroy <scope>"),
		helpDescStyle.Render("  /recreate <scope>"),
		helpDescStyle.Render("  /connect <scope>"),
		"",
		helpDescStyle.Render("  Scopes: session:<id>, agent:<id>, shared"),
		"",
		helpKeyStyle.Render("  q") + helpDescStyle.Render("  quit") + "     " + helpKeyStyle.Render("?") + helpDescStyle.Render("  close this help"),
	}, "\n")

	modal := helpStyle.Render(help)

	// Center the modal over the base view
	modalWidth := lipgloss.Width(modal)
	modalHeight := lipgloss.Height(modal)

	baseLines := strings.Split(base, "\n")

	// Calculate offsets
	xOffset := max(0, (m.width-modalWidth)/2)
	yOffset := max(0, (m.height-modalHeight)/2)

	// Overlay modal onto base
	modalLines := strings.Split(modal, "\n")
	for i, mLine := range modalLines {
		row := yOffset + i
		if row < len(baseLines) {
			baseLine := baseLines[row]
			padding := strings.Repeat(" ", xOffset)
			for lipgloss.Width(baseLine) < m.width {
				baseLine += " "
			}
			baseLines[row] = padding + mLine + strings.Repeat(" ", max(0, m.width-xOffset-lipgloss.Width(mLine)))
		}
	}

	return strings.Join(baseLines, "\n")
}
