// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Send          key.Binding
	Newline       key.Binding
	NewChat       key.Binding
	FocusSidebar  key.Binding
	Up            key.Binding
	Down          key.Binding
	Select        key.Binding
	Rename        key.Binding
	Delete        key.Binding
	Edit          key.Binding
	Copy          key.Binding
	PrevUser      key.Binding
	NextUser      key.Binding
	Attach        key.Binding
	System        key.Binding
	ToggleTheme   key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
	Cancel        key.Binding
	DismissError  key.Binding
	Help          key.Binding
	Quit          key.Binding
	ConfirmDelete key.Binding
	DeclineDelete key.Binding
}

// DefaultKeyMap returns the default key bindings for the chat interface.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("Alt+Enter", "new line"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		FocusSidebar: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("Tab", "conversations"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "next"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "open"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete"),
		),
		Edit: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "edit message"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy reply"),
		),
		PrevUser: key.NewBinding(
			key.WithKeys("ctrl+up"),
			key.WithHelp("C-up", "previous prompt"),
		),
		NextUser: key.NewBinding(
			key.WithKeys("ctrl+down"),
			key.WithHelp("C-down", "next prompt"),
		),
		Attach: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "attach image"),
		),
		System: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "system instruction"),
		),
		ToggleTheme: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "theme"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "cancel"),
		),
		DismissError: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "dismiss error"),
		),
		Help: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
		ConfirmDelete: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "delete"),
		),
		DeclineDelete: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "keep"),
		),
	}
}

// =============================================================================
// KEY BINDING HELPERS
// =============================================================================

// ShortHelp returns the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.NewChat, k.FocusSidebar, k.Attach, k.Help, k.Quit}
}

// FullHelp returns the bindings shown in the help overlay.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		// Composer
		{k.Send, k.Newline, k.Attach, k.System, k.Edit, k.Copy, k.PrevUser, k.NextUser},
		// Conversations
		{k.NewChat, k.FocusSidebar, k.Select, k.Rename, k.Delete},
		// View
		{k.PageUp, k.PageDown, k.ToggleTheme, k.DismissError, k.Cancel, k.Quit},
	}
}

// sidebarHelp returns the bindings shown while the sidebar has focus.
func (k KeyMap) sidebarHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Rename, k.Delete, k.Cancel}
}

// editHelp returns the bindings shown in edit mode.
func (k KeyMap) editHelp() []key.Binding {
	save := key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "save"))
	return []key.Binding{save, k.Newline, k.Cancel}
}
