// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app holds the session state shared by the TUI and the plain REPL
// and the handlers that change it.
//
// Handlers are methods on Session with value receivers. Each returns the
// next Session, the next conversation mapping and, when the action needs a
// model response, the turn to start. Inputs the current state does not
// allow are ignored: the returned values equal the inputs and the turn is
// nil.
//
// Usage:
//
//	s, next, turn := sess.Send(st.Snapshot(), text, nil, time.Now())
//	st.Commit(next)
//	if turn != nil {
//	    events := rec.Start(ctx, *turn)
//	    ...
//	}
package app

import (
	"strings"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/store"
)

// AttachErrorText is shown when an attachment cannot be read.
const AttachErrorText = "Error processing image file."

// Session is the UI selection and status state.
type Session struct {
	// ActiveID is the selected conversation, empty for the welcome screen.
	ActiveID string

	// Loading is set from send until the first event of the turn arrives.
	Loading bool

	// Streaming is set while a turn is in flight, including after Loading
	// clears.
	Streaming bool

	// EditingID is the user message being edited.
	EditingID string

	// Error is the banner text.
	Error string

	Theme model.Theme
}

// Busy reports whether a turn is in flight.
func (s Session) Busy() bool {
	return s.Loading || s.Streaming
}

// CanSend reports whether the composer accepts input.
func (s Session) CanSend() bool {
	return !s.Busy() && s.EditingID == ""
}

// CanEditSystemInstruction reports whether the system instruction panel
// accepts input.
func (s Session) CanEditSystemInstruction() bool {
	return s.ActiveID != "" && s.CanSend()
}

// ShowTyping reports whether the typing indicator is visible.
func (s Session) ShowTyping() bool {
	return s.Loading && s.EditingID == ""
}

// =============================================================================
// SENDING AND EDITING
// =============================================================================

// Send appends a user message to the active conversation, creating one
// when none is active, and returns the turn to start. Blank text without an
// image is ignored.
func (s Session) Send(convs store.Conversations, text string, image *model.ImagePart, now time.Time) (Session, store.Conversations, *reconcile.Turn) {
	if !s.CanSend() || (strings.TrimSpace(text) == "" && image == nil) {
		return s, convs, nil
	}

	next, id, _ := convs.Ensure(s.ActiveID, text, image != nil, now)
	next = next.Append(id, model.NewUserMessage(text, image, now))

	conv, _ := next.Get(id)
	s.ActiveID = id
	s.Loading = true
	s.Streaming = true
	s.Error = ""
	return s, next, turnFor(conv, conv.Messages)
}

// StartEdit enters edit mode for a user message of the active conversation.
func (s Session) StartEdit(convs store.Conversations, msgID string) (Session, store.Conversations, *reconcile.Turn) {
	if s.Busy() {
		return s, convs, nil
	}
	conv, ok := convs.Get(s.ActiveID)
	if !ok {
		return s, convs, nil
	}
	idx := conv.Index(msgID)
	if idx < 0 || conv.Messages[idx].Role != model.RoleUser {
		return s, convs, nil
	}
	s.EditingID = msgID
	return s, convs, nil
}

// CancelEdit leaves edit mode without changes.
func (s Session) CancelEdit(convs store.Conversations) (Session, store.Conversations, *reconcile.Turn) {
	s.EditingID = ""
	return s, convs, nil
}

// SaveEdit replaces the text of the message being edited, drops every later
// message and returns the turn that regenerates the reply. msgID must be
// the message edit mode was started for.
func (s Session) SaveEdit(convs store.Conversations, msgID, text string) (Session, store.Conversations, *reconcile.Turn) {
	if s.Busy() || s.EditingID == "" || msgID != s.EditingID {
		return s, convs, nil
	}
	conv, ok := convs.Get(s.ActiveID)
	if !ok {
		return s, convs, nil
	}
	idx := conv.Index(msgID)
	if idx < 0 {
		return s, convs, nil
	}
	if strings.TrimSpace(text) == "" && !conv.Messages[idx].HasImage() {
		return s, convs, nil
	}

	next, history, ok := convs.EditAndTruncate(s.ActiveID, msgID, text)
	if !ok {
		return s, convs, nil
	}
	conv, _ = next.Get(s.ActiveID)

	s.EditingID = ""
	s.Loading = true
	s.Streaming = true
	s.Error = ""
	return s, next, turnFor(conv, history)
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// NewChat returns to the welcome screen. The next send creates the
// conversation.
func (s Session) NewChat(convs store.Conversations) (Session, store.Conversations, *reconcile.Turn) {
	s.ActiveID = ""
	s.EditingID = ""
	s.Error = ""
	return s, convs, nil
}

// Select makes id the active conversation. Unknown ids are ignored.
func (s Session) Select(convs store.Conversations, id string) (Session, store.Conversations, *reconcile.Turn) {
	if _, ok := convs.Get(id); !ok {
		return s, convs, nil
	}
	if id != s.ActiveID {
		s.EditingID = ""
		s.Error = ""
	}
	s.ActiveID = id
	return s, convs, nil
}

// Delete removes a conversation. Deleting the active one returns to the
// welcome screen.
func (s Session) Delete(convs store.Conversations, id string) (Session, store.Conversations, *reconcile.Turn) {
	next := convs.Delete(id)
	if id != "" && id == s.ActiveID {
		s.ActiveID = ""
		s.EditingID = ""
	}
	return s, next, nil
}

// Rename sets a conversation title. Blank titles are ignored.
func (s Session) Rename(convs store.Conversations, id, title string) (Session, store.Conversations, *reconcile.Turn) {
	title = strings.TrimSpace(title)
	if title == "" {
		return s, convs, nil
	}
	return s, convs.Rename(id, title), nil
}

// SetSystemInstruction sets the active conversation's system instruction.
// Surrounding whitespace is trimmed and an empty value clears it.
func (s Session) SetSystemInstruction(convs store.Conversations, text string) (Session, store.Conversations, *reconcile.Turn) {
	if !s.CanEditSystemInstruction() {
		return s, convs, nil
	}
	return s, convs.SetSystemInstruction(s.ActiveID, strings.TrimSpace(text)), nil
}

// =============================================================================
// STATUS
// =============================================================================

// ToggleTheme switches between the light and dark theme.
func (s Session) ToggleTheme(convs store.Conversations) (Session, store.Conversations, *reconcile.Turn) {
	s.Theme = s.Theme.Toggle()
	return s, convs, nil
}

// AttachFailed reports an unreadable attachment. Nothing is sent.
func (s Session) AttachFailed(convs store.Conversations) (Session, store.Conversations, *reconcile.Turn) {
	s.Error = AttachErrorText
	return s, convs, nil
}

// DismissError clears the banner.
func (s Session) DismissError(convs store.Conversations) (Session, store.Conversations, *reconcile.Turn) {
	s.Error = ""
	return s, convs, nil
}

// ApplyOutcome folds a reconciler outcome into the session.
func (s Session) ApplyOutcome(convs store.Conversations, out reconcile.Outcome) (Session, store.Conversations, *reconcile.Turn) {
	s.Loading = out.Loading
	if out.Done {
		s.Loading = false
		s.Streaming = false
	}
	if out.Err != "" {
		s.Error = out.Err
	}
	return s, convs, nil
}

// =============================================================================
// VIEW HELPERS
// =============================================================================

// Visible returns the messages to render: the active conversation's, or
// the welcome message when none is active.
func Visible(s Session, convs store.Conversations) []model.Message {
	conv, ok := convs.Get(s.ActiveID)
	if !ok {
		return []model.Message{model.Welcome()}
	}
	return conv.Messages
}

// Active returns the active conversation.
func Active(s Session, convs store.Conversations) (model.Conversation, bool) {
	return convs.Get(s.ActiveID)
}

// CopyText returns the text the copy action takes from the active
// conversation: msgID's when it names a message there, otherwise the latest
// model reply with text. ok is false when there is nothing to copy.
func CopyText(s Session, convs store.Conversations, msgID string) (string, bool) {
	conv, ok := convs.Get(s.ActiveID)
	if !ok {
		return "", false
	}
	if idx := conv.Index(msgID); msgID != "" && idx >= 0 {
		text := conv.Messages[idx].Text()
		return text, text != ""
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.Role == model.RoleModel && msg.Text() != "" {
			return msg.Text(), true
		}
	}
	return "", false
}

func turnFor(conv model.Conversation, history []model.Message) *reconcile.Turn {
	h := make([]model.Message, len(history))
	copy(h, history)
	return &reconcile.Turn{
		ConversationID:    conv.ID,
		History:           h,
		SystemInstruction: conv.SystemInstruction,
	}
}
