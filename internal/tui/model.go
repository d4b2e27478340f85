package tui

import (
	"os"

	"github.com/KLDTECHNIX/openclaw/internal/config"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	"github.com/KLDTECHNIX/openclaw/internal/workspace"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// row is one sandbox in the dashboard list: the registry entry joined with
// live jail state, the parsed scope key, and the spec the config would
// produce for that scope today.
type row struct {
	info  sandbox.Info
	key   sandbox.ScopeKey
	spec  sandbox.Spec
	drift bool
}

// model is the Bubble Tea model for the clawjail TUI.
type model struct {
	projectDir string
	cfg        *config.Config
	manager    *sandbox.Manager
	rows       []row
	input      textinput.Model
	cursor     int
	message    string
	isError    bool
	commanding bool   // true when in command mode (/ pressed)
	quitting   bool
	connectTo  string // jail name to connect to after tea quits
	width      int
	height     int
	busy       string // non-empty while a provision/destroy runs in the background

	// Help modal
	showHelp bool

	// Double-press destroy confirmation
	confirmDestroy    bool
	confirmDestroyKey string
}

func newModel(projectDir string, cfg *config.Config, mgr *sandbox.Manager) model {
	ti := textinput.New()
	ti.Placeholder = "ensure, destroy, recreate, exec, connect <scope> | quit"
	ti.CharLimit = 256
	ti.Width = 80
	// Input starts unfocused — activated by pressing /
	ti.Blur()

	// Get initial terminal size so the first render isn't at width=0
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	return model{
		projectDir: projectDir,
		cfg:        cfg,
		manager:    mgr,
		input:      ti,
		width:      w,
		height:     h,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

// specFor resolves the workspace for a scope key and materializes the spec.
func (m model) specFor(key sandbox.ScopeKey) (sandbox.Spec, error) {
	paths, err := workspace.Resolve(m.projectDir, m.cfg, key)
	if err != nil {
		return sandbox.Spec{}, err
	}
	return m.cfg.Spec(paths.Dir, paths.AgentDir, paths.Access), nil
}
