package monitor

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Key bindings as constants for consistency.
const (
	KeyQuit        = "q"
	KeyQuitAlt     = "ctrl+c"
	KeyRefresh     = "r"
	KeySelectPrev  = "up"
	KeySelectPrevK = "k"
	KeySelectNext  = "down"
	KeySelectNextJ = "j"
	KeySelectFirst = "home"
	KeySelectLast  = "end"
	KeyCollapse    = "esc"
	KeyToggleHelp  = "?"
)

// keyMap feeds the one-line footer rendered by bubbles/help.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
	Up      key.Binding
	Down    key.Binding
	Help    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys(KeyQuit, KeyQuitAlt), key.WithHelp("q", "quit")),
		Refresh: key.NewBinding(key.WithKeys(KeyRefresh), key.WithHelp("r", "refresh")),
		Up:      key.NewBinding(key.WithKeys(KeySelectPrev, KeySelectPrevK), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys(KeySelectNext, KeySelectNextJ), key.WithHelp("↓/j", "down")),
		Help:    key.NewBinding(key.WithKeys(KeyToggleHelp), key.WithHelp("?", "help")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Up, k.Down, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// HandleKeyMsg processes keyboard input and returns updated model state and command.
// Returns true if the key was handled, false otherwise. Unhandled
// navigation keys fall through to the table.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	k := msg.String()

	// Help toggle takes priority
	if k == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}

	if m.showHelp && k == KeyCollapse {
		m.showHelp = false
		return true, nil
	}

	switch k {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		m.cancel()
		return true, tea.Quit

	case KeyRefresh:
		if m.fetching {
			return true, nil
		}
		return true, func() tea.Msg { return refreshMsg{} }

	case KeySelectFirst:
		m.table.GotoTop()
		return true, nil

	case KeySelectLast:
		m.table.GotoBottom()
		return true, nil
	}

	return false, nil
}
