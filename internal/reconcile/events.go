// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import "time"

// =============================================================================
// EVENT TYPES
// =============================================================================

// Event is emitted by a running turn. The concrete types are Started,
// Fragment, Completed and Failed.
type Event interface {
	Conversation() string
	isEvent()
}

// Started is emitted once the stream has opened. MessageID names the
// placeholder that fragments are folded into.
type Started struct {
	ConversationID string
	MessageID      string
	At             time.Time
}

// Fragment carries one streamed text chunk.
type Fragment struct {
	ConversationID string
	MessageID      string
	Text           string
}

// Completed is emitted after the last fragment of a successful stream.
type Completed struct {
	ConversationID string
}

// Failed is emitted when the stream could not be opened or broke midway.
type Failed struct {
	ConversationID string
	Err            error
	At             time.Time
}

func (e Started) Conversation() string   { return e.ConversationID }
func (e Fragment) Conversation() string  { return e.ConversationID }
func (e Completed) Conversation() string { return e.ConversationID }
func (e Failed) Conversation() string    { return e.ConversationID }

func (Started) isEvent()   {}
func (Fragment) isEvent()  {}
func (Completed) isEvent() {}
func (Failed) isEvent()    {}

// Terminal reports whether ev ends a turn.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Failed:
		return true
	default:
		return false
	}
}
