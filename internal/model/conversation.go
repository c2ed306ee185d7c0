// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// TitleMaxRunes bounds a derived title.
	TitleMaxRunes = 40

	// ImageTitle is the title used when the first message has no text.
	ImageTitle = "Image Query"

	// UntitledTitle is shown for a conversation whose title is empty.
	UntitledTitle = "New Chat"

	conversationPrefix = "convo-"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a titled, ordered transcript. Values are treated as
// immutable: every mutation in the store produces a fresh Conversation.
type Conversation struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Messages          []Message `json:"messages"`
	SystemInstruction string    `json:"systemInstruction,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
	UpdatedAt         time.Time `json:"updatedAt,omitzero"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation(title string, now time.Time) Conversation {
	return Conversation{
		ID:        newID(conversationPrefix),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveTitle builds a title from the first message of a conversation:
// the first TitleMaxRunes runes of the normalized text with no ellipsis,
// or ImageTitle when the text is blank and an image is attached.
func DeriveTitle(text string, hasImage bool) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		if hasImage {
			return ImageTitle
		}
		return UntitledTitle
	}
	normalized := norm.NFC.String(text)
	runes := []rune(normalized)
	if len(runes) > TitleMaxRunes {
		runes = runes[:TitleMaxRunes]
	}
	return string(runes)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// DisplayTitle returns the title or a default for an empty one.
func (c Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) == "" {
		return UntitledTitle
	}
	return c.Title
}

// Index returns the position of the message with the given ID, or -1.
func (c Conversation) Index(msgID string) int {
	for i, m := range c.Messages {
		if m.ID == msgID {
			return i
		}
	}
	return -1
}

// Last returns the final message.
func (c Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Preview returns a short preview of the latest user message.
func (c Conversation) Preview(maxLen int) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Preview(maxLen)
		}
	}
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	return c.Messages[0].Preview(maxLen)
}

// Clone returns a copy with its own message slice.
func (c Conversation) Clone() Conversation {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return c
}

// Newer reports whether a sorts before b in recency order: latest
// UpdatedAt first, then latest CreatedAt, then ID descending.
func Newer(a, b Conversation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// =============================================================================
// TURN CONVERSION
// =============================================================================

// Turn is one role/parts entry of the history sent to a model.
type Turn struct {
	Role  Role
	Parts Parts
}

// TurnsOf converts messages to turns, preserving order and parts. Model
// messages with no content, left behind by a stream that failed before its
// first fragment, are skipped.
func TurnsOf(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleModel && m.Text() == "" && !m.HasImage() {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Parts: m.Parts.Clone()})
	}
	return turns
}
