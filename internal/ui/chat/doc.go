// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the Bubble Tea chat view for gemchat.

The view is a sidebar of conversations next to a transcript, with a
system-instruction panel and a composer underneath.

# Architecture

  - keys.go     - KeyMap and help bindings
  - messages.go - Bubble Tea message types
  - model.go    - Model state, Init and Update
  - commands.go - Commands bridging the reconciler and config watcher
  - render.go   - Message rendering (glamour for model replies)
  - view.go     - Layout and View

# State

Selection, loading, edit mode and the banner live in an app.Session value.
Conversations live in a store.Store whose commit hook persists every
change. Update is the only goroutine that touches either.

# Streaming

A send produces a reconcile.Turn. The model takes the conversation's
in-flight guard, starts the reconciler and waits for one event per
command:

	events := m.reconciler.Start(m.ctx, turn)
	return waitForEvent(turn.ConversationID, events)

Each event is folded with reconcile.Apply and the outcome is applied to
the session. The guard is released on the terminal event or when the
channel closes.

# Usage

	m := chat.New(chat.Options{
	    Store:      st,
	    Themes:     adapter,
	    Reconciler: reconcile.New(client, logger),
	    Theme:      theme,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
*/
package chat
