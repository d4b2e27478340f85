package tui

import (
	"fmt"
	"os"

	"github.com/KLDTECHNIX/openclaw/internal/config"
	"github.com/KLDTECHNIX/openclaw/internal/sandbox"
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the main TUI loop. It cycles between the Bubble Tea dashboard
// and subprocess connections (jexec shell) until the user quits.
func Run(projectDir string, cfg *config.Config, mgr *sandbox.Manager) error {
	for {
		m := newModel(projectDir, cfg, mgr)
		p := tea.NewProgram(m, tea.WithAltScreen())
		result, err := p.Run()
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}

		final := result.(model)

		if final.quitting {
			fmt.Println("Goodbye! (sandboxes left intact — use destroy to tear them down)")
			return nil
		}

		if final.connectTo != "" {
			fmt.Printf("Connecting to %s... (exit the shell to return)\n", final.connectTo)

			cmd := mgr.ConnectCmd(final.connectTo)
			cmd.Stdin = os.Stdin
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			cmd.Run()

			// Reset terminal after the shell exits so Bubble Tea starts clean
			fmt.Print("\033c") // full terminal reset (RIS)
		}
	}
}
