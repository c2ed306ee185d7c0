// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "AI Bot"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// =============================================================================
// FIXED TEXTS
// =============================================================================

const (
	// WelcomeID identifies the greeting shown when no conversation is active.
	WelcomeID = "ai-initial"

	// WelcomeText is the greeting body. It is never persisted.
	WelcomeText = "Hello! I'm your AI Bot. You can ask me questions, or even send me an image. How can I help you today?"

	// ApologyText is appended as a model message when a stream fails.
	ApologyText = "Sorry, I encountered an error. Please try again."
)

// ID prefixes.
const (
	userPrefix  = "user-"
	modelPrefix = "ai-"
	errorPrefix = "ai-error-"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     Parts     `json:"parts"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// NewUserMessage builds a user message. The image, when present, comes
// first. A text part is added only when text is non-blank, and then the
// untrimmed text is kept.
func NewUserMessage(text string, image *ImagePart, now time.Time) Message {
	var parts Parts
	if image != nil {
		parts = append(parts, *image)
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, TextPart{Text: text})
	}
	return Message{
		ID:        newID(userPrefix),
		Role:      RoleUser,
		Parts:     parts,
		CreatedAt: now,
	}
}

// NewPlaceholder creates the empty model message that streamed fragments
// are appended to.
func NewPlaceholder(now time.Time) Message {
	return Message{
		ID:        newID(modelPrefix),
		Role:      RoleModel,
		Parts:     Parts{TextPart{Text: ""}},
		CreatedAt: now,
	}
}

// NewApology creates the model message appended when a stream fails.
func NewApology(now time.Time) Message {
	return Message{
		ID:        newID(errorPrefix),
		Role:      RoleModel,
		Parts:     Parts{TextPart{Text: ApologyText}},
		CreatedAt: now,
	}
}

// Welcome returns the greeting displayed when nothing is selected.
func Welcome() Message {
	return Message{
		ID:    WelcomeID,
		Role:  RoleModel,
		Parts: Parts{TextPart{Text: WelcomeText}},
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Text returns the concatenated text of the message.
func (m Message) Text() string {
	return m.Parts.JoinText()
}

// HasImage reports whether the message carries at least one image.
func (m Message) HasImage() bool {
	return len(m.Parts.Images()) > 0
}

// IsError reports whether the message is a stream-failure apology.
func (m Message) IsError() bool {
	return strings.HasPrefix(m.ID, errorPrefix)
}

// WithText returns a copy holding the image parts of m followed by a single
// text part. Any earlier text is dropped.
func (m Message) WithText(text string) Message {
	parts := m.Parts.Images()
	m.Parts = append(parts, TextPart{Text: text})
	return m
}

// Preview returns a single-line preview of at most maxLen runes.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Text()), " ")
	if content == "" && m.HasImage() {
		content = "[image]"
	}
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// newID returns prefix followed by a time-ordered UUID.
func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + id.String()
}
