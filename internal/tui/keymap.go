package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the browser key bindings.
type keyMap struct {
	quit          key.Binding
	reload        key.Binding
	toggleHelp    key.Binding
	toggleUpdated key.Binding
	copyIssueKey  key.Binding
	moveUp        key.Binding
	moveDown      key.Binding
	top           key.Binding
	bottom        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		toggleUpdated: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "started/updated")),
		copyIssueKey:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy issue key")),
		moveUp:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		top:           key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first")),
		bottom:        key.NewBinding(key.WithKeys("G", "shift+g", "end"), key.WithHelp("G", "last")),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.moveDown, k.moveUp, k.toggleUpdated, k.copyIssueKey, k.reload, k.quit}
}

// FullHelp returns every binding grouped by purpose.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveDown, k.moveUp, k.top, k.bottom},
		{k.toggleUpdated, k.copyIssueKey, k.reload, k.toggleHelp, k.quit},
	}
}
