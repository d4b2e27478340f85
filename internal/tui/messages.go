package tui

import (
	"context"
	"time"

	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	tea "github.com/charmbracelet/bubbletea"
)

// sandboxReadyMsg is sent when a background ensure/recreate finishes.
type sandboxReadyMsg struct {
	name string
	err  error
}

// sandboxDestroyedMsg is sent when a background destroy finishes.
type sandboxDestroyedMsg struct {
	name   string
	failed []string // teardown steps that did not complete
	err    error
}

// refreshedMsg carries a fresh snapshot of the sandbox list.
type refreshedMsg struct {
	rows []row
	err  error
}

// confirmDestroyExpiredMsg cancels a pending destroy confirmation.
type confirmDestroyExpiredMsg struct{}

// statusTickMsg triggers a status refresh poll.
type statusTickMsg time.Time

// tickCmd returns a command that sends a tick every 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// refreshCmd loads the registry, queries live jail state, and computes
// config drift for each sandbox.
func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		infos, err := m.manager.List(context.Background())
		if err != nil {
			return refreshedMsg{err: err}
		}
		rows := make([]row, 0, len(infos))
		for _, info := range infos {
			r := row{info: info}
			if key, err := sandbox.ParseScopeKey(info.Entry.ScopeKey); err == nil {
				r.key = key
				if spec, err := m.specFor(key); err == nil {
					r.spec = spec
					r.drift = sandbox.Fingerprint(spec) != info.Entry.Fingerprint
				}
			}
			rows = append(rows, r)
		}
		return refreshedMsg{rows: rows}
	}
}
