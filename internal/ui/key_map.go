package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up         key.Binding
	down       key.Binding
	play       key.Binding
	close      key.Binding
	visualizer key.Binding
	upload     key.Binding
	refresh    key.Binding
	delete     key.Binding
	next       key.Binding
	prev       key.Binding
	keep       key.Binding
	detect     key.Binding
	submit     key.Binding
	back       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		play:       key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "play/pause")),
		close:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		visualizer: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "visualizer")),
		upload:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		next:       key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prev:       key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
		keep:       key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "keep file")),
		detect:     key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "detect")),
		submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "upload")),
		back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.play, k.close},
		{k.visualizer, k.upload, k.refresh, k.delete},
		{k.back, k.quit},
	}
}
