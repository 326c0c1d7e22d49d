package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the task monitor.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	pause  key.Binding
	resume key.Binding
	cancel key.Binding
	remove key.Binding
	clear  key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		remove: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "remove")),
		clear:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear completed")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.pause, k.resume, k.cancel, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.pause, k.resume, k.cancel},
		{k.remove, k.clear, k.quit},
	}
}
