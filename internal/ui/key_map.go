package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	space   key.Binding
	seekB   key.Binding
	seekF   key.Binding
	volUp   key.Binding
	volDn   key.Binding
	enter   key.Binding
	edit    key.Binding
	delete  key.Binding
	zoomIn  key.Binding
	zoomOut key.Binding
	back    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		space:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		seekB:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "seek -5s")),
		seekF:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "seek +5s")),
		volUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		volDn:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play segment")),
		edit:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e/E", "edit start/end")),
		delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		zoomIn:  key.NewBinding(key.WithKeys("z"), key.WithHelp("z/x", "zoom")),
		zoomOut: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "zoom out")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.space},
		{k.seekB, k.seekF, k.volUp, k.volDn},
		{k.enter, k.edit, k.delete},
		{k.zoomIn, k.back, k.quit},
	}
}
