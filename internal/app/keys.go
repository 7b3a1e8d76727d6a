package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings outside the login form.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Enter     key.Binding
	Back      key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
	Home      key.Binding
	Novels    key.Binding
	Tasks     key.Binding
	Login     key.Binding
	Logout    key.Binding
	Debug     key.Binding
	Filter    key.Binding
	Refresh   key.Binding
	Structure key.Binding
	Outline   key.Binding
	Chapter   key.Binding
	Stop      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", " "),
			key.WithHelp("pgdn", "page down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
		Home: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "home"),
		),
		Novels: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "novels"),
		),
		Tasks: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "tasks"),
		),
		Login: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "sign in"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "sign out"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filter log"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Structure: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "structure"),
		),
		Outline: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "outline"),
		),
		Chapter: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "next chapter"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
	}
}
