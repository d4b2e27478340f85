package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KLDTECHNIX/openclaw/internal/jail"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	"github.com/KLDTECHNIX/openclaw/internal/workspace"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/shlex"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6 // account for "  > /" prefix
		return m, nil

	case statusTickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case refreshedMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("refresh error: %v", msg.err)
			m.isError = true
			return m, nil
		}
		m.rows = msg.rows
		if m.cursor >= len(m.rows) && m.cursor > 0 {
			m.cursor = len(m.rows) - 1
		}
		return m, nil

	case sandboxReadyMsg:
		m.busy = ""
		if msg.err != nil {
			m.message = fmt.Sprintf("Error: %v", msg.err)
			m.isError = true
		} else {
			m.message = fmt.Sprintf("Sandbox ready: %s", msg.name)
			m.isError = false
		}
		return m, tea.Batch(m.refreshCmd(), tea.ClearScreen)

	case sandboxDestroyedMsg:
		m.busy = ""
		if msg.err != nil {
			m.message = fmt.Sprintf("Destroy failed: %v", msg.err)
			m.isError = true
		} else if len(msg.failed) > 0 {
			m.message = fmt.Sprintf("Destroyed %s (incomplete teardown: %s)",
				msg.name, strings.Join(msg.failed, ", "))
			m.isError = true
		} else {
			m.message = fmt.Sprintf("Destroyed sandbox: %s", msg.name)
			m.isError = false
		}
		if m.cursor >= len(m.rows) && m.cursor > 0 {
			m.cursor--
		}
		return m, tea.Batch(m.refreshCmd(), tea.ClearScreen)

	case confirmDestroyExpiredMsg:
		m.confirmDestroy = false
		m.confirmDestroyKey = ""
		return m, nil

	case tea.KeyMsg:
		if m.commanding {
			return m.handleCommandMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	// Forward to input if in command mode
	if m.commanding {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleNormalMode handles keys when navigating the sandbox list.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Dismiss help modal
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "esc" {
			m.showHelp = false
			return m, nil
		}
		// While help is showing, ignore other keys
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	// If confirming a destroy, second x confirms, anything else cancels
	if m.confirmDestroy {
		m.confirmDestroy = false
		if msg.String() == "x" {
			scope := m.confirmDestroyKey
			m.confirmDestroyKey = ""
			return m.startDestroy(scope)
		}
		m.confirmDestroyKey = ""
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "/":
		m.commanding = true
		m.input.Focus()
		m.input.SetValue("")
		return m, textinput.Blink

	case "x":
		if m.cursor < len(m.rows) {
			m.confirmDestroy = true
			m.confirmDestroyKey = m.rows[m.cursor].info.Entry.ScopeKey
			return m, tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
				return confirmDestroyExpiredMsg{}
			})
		}
		return m, nil

	case "r":
		if m.cursor < len(m.rows) {
			return m.startRecreate(m.rows[m.cursor].info.Entry.ScopeKey)
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		} else if len(m.rows) > 0 {
			m.cursor = len(m.rows) - 1
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		if m.cursor < len(m.rows) {
			r := m.rows[m.cursor]
			if !r.info.State.Running {
				m.message = fmt.Sprintf("%s is not running", r.info.Entry.UnitName)
				m.isError = true
				return m, nil
			}
			m.connectTo = r.info.Entry.UnitName
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}

// handleCommandMode handles keys when the command input is active.
func (m model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.commanding = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case "enter":
		m.commanding = false
		m.input.Blur()
		return m.processInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) processInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	// Allow commands with or without the / prefix
	if input[0] != '/' {
		input = "/" + input
	}

	cmd := ParseCommand(input)
	if cmd == nil {
		return m, nil
	}

	switch cmd.Name {
	case "/ensure":
		if len(cmd.Args) != 1 {
			m.message = "Usage: /ensure <scope>"
			m.isError = true
			return m, nil
		}
		return m.startEnsure(cmd.Args[0])

	case "/destroy":
		if len(cmd.Args) != 1 {
			m.message = "Usage: /destroy <scope>"
			m.isError = true
			return m, nil
		}
		return m.startDestroy(cmd.Args[0])

	case "/recreate":
		if len(cmd.Args) != 1 {
			m.message = "Usage: /recreate <scope>"
			m.isError = true
			return m, nil
		}
		return m.startRecreate(cmd.Args[0])

	case "/exec":
		if len(cmd.Args) < 2 {
			m.message = "Usage: /exec <scope> <command>"
			m.isError = true
			return m, nil
		}
		return m.startExec(cmd.Args[0], strings.Join(cmd.Args[1:], " "))

	case "/connect":
		if len(cmd.Args) != 1 {
			m.message = "Usage: /connect <scope>"
			m.isError = true
			return m, nil
		}
		r, ok := m.rowForScope(cmd.Args[0])
		if !ok {
			m.message = fmt.Sprintf("No sandbox for scope %q", cmd.Args[0])
			m.isError = true
			return m, nil
		}
		m.connectTo = r.info.Entry.UnitName
		return m, tea.Quit

	case "/quit":
		m.quitting = true
		return m, tea.Quit

	default:
		m.message = fmt.Sprintf("Unknown command: %s", cmd.Name)
		m.isError = true
		return m, nil
	}
}

func (m model) rowForScope(scope string) (row, bool) {
	for _, r := range m.rows {
		if r.info.Entry.ScopeKey == scope {
			return r, true
		}
	}
	return row{}, false
}

// resolveScope parses a scope argument and materializes its spec.
func (m model) resolveScope(scope string) (sandbox.ScopeKey, sandbox.Spec, error) {
	key, err := sandbox.ParseScopeKey(scope)
	if err != nil {
		return sandbox.ScopeKey{}, sandbox.Spec{}, err
	}
	spec, err := m.specFor(key)
	if err != nil {
		return sandbox.ScopeKey{}, sandbox.Spec{}, err
	}
	return key, spec, nil
}

func (m model) startEnsure(scope string) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.message = fmt.Sprintf("Busy: %s", m.busy)
		m.isError = true
		return m, nil
	}
	key, spec, err := m.resolveScope(scope)
	if err != nil {
		m.message = fmt.Sprintf("Error: %v", err)
		m.isError = true
		return m, nil
	}
	m.busy = fmt.Sprintf("ensuring %s", key)
	m.message = fmt.Sprintf("Ensuring sandbox for %s...", key)
	m.isError = false
	mgr := m.manager
	return m, func() tea.Msg {
		name, err := mgr.Ensure(context.Background(), key, spec)
		return sandboxReadyMsg{name: name, err: err}
	}
}

func (m model) startDestroy(scope string) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.message = fmt.Sprintf("Busy: %s", m.busy)
		m.isError = true
		return m, nil
	}
	key, spec, err := m.resolveScope(scope)
	if err != nil {
		m.message = fmt.Sprintf("Error: %v", err)
		m.isError = true
		return m, nil
	}
	m.busy = fmt.Sprintf("destroying %s", key)
	m.message = fmt.Sprintf("Destroying sandbox for %s...", key)
	m.isError = false
	mgr := m.manager
	projectDir, cfg := m.projectDir, m.cfg
	return m, func() tea.Msg {
		report, err := mgr.Destroy(context.Background(), key, spec)
		if err != nil {
			return sandboxDestroyedMsg{name: key.String(), err: err}
		}
		var failed []string
		for _, step := range report.Failed() {
			failed = append(failed, step.Step)
		}
		workspace.Remove(projectDir, cfg, key)
		return sandboxDestroyedMsg{name: key.String(), failed: failed}
	}
}

func (m model) startRecreate(scope string) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.message = fmt.Sprintf("Busy: %s", m.busy)
		m.isError = true
		return m, nil
	}
	key, spec, err := m.resolveScope(scope)
	if err != nil {
		m.message = fmt.Sprintf("Error: %v", err)
		m.isError = true
		return m, nil
	}
	m.busy = fmt.Sprintf("recreating %s", key)
	m.message = fmt.Sprintf("Recreating sandbox for %s...", key)
	m.isError = false
	mgr := m.manager
	return m, func() tea.Msg {
		if _, err := mgr.Destroy(context.Background(), key, spec); err != nil {
			return sandboxReadyMsg{err: err}
		}
		name, err := mgr.Ensure(context.Background(), key, spec)
		return sandboxReadyMsg{name: name, err: err}
	}
}

func (m model) startExec(scope, command string) (tea.Model, tea.Cmd) {
	r, ok := m.rowForScope(scope)
	if !ok {
		m.message = fmt.Sprintf("No sandbox for scope %q", scope)
		m.isError = true
		return m, nil
	}
	argv, err := shlex.Split(command)
	if err != nil {
		m.message = fmt.Sprintf("Error: %v", err)
		m.isError = true
		return m, nil
	}
	name := r.info.Entry.UnitName
	mgr := m.manager
	opts := jail.ExecOptions{
		User:         r.spec.UserID,
		Dir:          r.spec.Workdir,
		Env:          r.spec.Env,
		AllowFailure: true,
	}
	return m, func() tea.Msg {
		result, err := mgr.Exec(context.Background(), name, argv, opts)
		if err != nil {
			return sandboxReadyMsg{name: name, err: err}
		}
		out := strings.TrimSpace(result.Stdout)
		if out == "" {
			out = strings.TrimSpace(result.Stderr)
		}
		if len(out) > 200 {
			out = out[:200] + "..."
		}
		if result.ExitCode != 0 {
			return sandboxReadyMsg{name: name,
				err: fmt.Errorf("exit %d: %s", result.ExitCode, out)}
		}
		return sandboxReadyMsg{name: fmt.Sprintf("%s: %s", name, out)}
	}
}
