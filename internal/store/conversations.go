// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory conversation mapping.
//
// Conversations is an immutable value: every operation returns a new mapping
// and leaves its receiver untouched. Store wraps the current mapping with a
// persistence hook and a per-conversation in-flight guard.
package store

import (
	"sort"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
)

// Conversations maps conversation ID to conversation.
type Conversations map[string]model.Conversation

// clone returns a shallow copy of the mapping. Conversation values are
// copied; their message slices are shared until written.
func (c Conversations) clone() Conversations {
	out := make(Conversations, len(c)+1)
	for id, conv := range c {
		out[id] = conv
	}
	return out
}

// with returns a copy of c with conv stored under its ID.
func (c Conversations) with(conv model.Conversation) Conversations {
	out := c.clone()
	out[conv.ID] = conv
	return out
}

// =============================================================================
// READ HELPERS
// =============================================================================

// Get returns the conversation with the given ID.
func (c Conversations) Get(id string) (model.Conversation, bool) {
	conv, ok := c[id]
	return conv, ok
}

// Len returns the number of conversations.
func (c Conversations) Len() int {
	return len(c)
}

// Sorted returns the conversations newest first.
func (c Conversations) Sorted() []model.Conversation {
	out := make([]model.Conversation, 0, len(c))
	for _, conv := range c {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return model.Newer(out[i], out[j])
	})
	return out
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create returns a mapping with conv added.
func (c Conversations) Create(conv model.Conversation) Conversations {
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	return c.with(conv)
}

// Ensure returns the receiver and activeID unchanged when activeID names an
// existing conversation. Otherwise it creates a conversation titled from
// text and returns its ID with created set.
func (c Conversations) Ensure(activeID, text string, hasImage bool, now time.Time) (next Conversations, id string, created bool) {
	if _, ok := c[activeID]; ok && activeID != "" {
		return c, activeID, false
	}
	conv := model.NewConversation(model.DeriveTitle(text, hasImage), now)
	return c.Create(conv), conv.ID, true
}

// Append adds msg to the end of the conversation. A missing ID is a no-op.
func (c Conversations) Append(id string, msg model.Message) Conversations {
	conv, ok := c[id]
	if !ok {
		return c
	}
	msgs := make([]model.Message, len(conv.Messages), len(conv.Messages)+1)
	copy(msgs, conv.Messages)
	conv.Messages = append(msgs, msg)
	conv.UpdatedAt = touch(conv.UpdatedAt, msg.CreatedAt)
	return c.with(conv)
}

// ReplaceTrailing replaces the final message. A missing ID or an empty
// conversation is a no-op.
func (c Conversations) ReplaceTrailing(id string, msg model.Message) Conversations {
	conv, ok := c[id]
	if !ok || len(conv.Messages) == 0 {
		return c
	}
	conv = conv.Clone()
	conv.Messages[len(conv.Messages)-1] = msg
	conv.UpdatedAt = touch(conv.UpdatedAt, msg.CreatedAt)
	return c.with(conv)
}

// AppendFragment concatenates fragment onto the text of message msgID.
// Unknown conversations or messages are a no-op.
func (c Conversations) AppendFragment(id, msgID, fragment string) Conversations {
	conv, ok := c[id]
	if !ok {
		return c
	}
	idx := conv.Index(msgID)
	if idx < 0 {
		return c
	}
	conv = conv.Clone()
	msg := conv.Messages[idx]
	msg.Parts = msg.Parts.AppendText(fragment)
	conv.Messages[idx] = msg
	return c.with(conv)
}

// EditAndTruncate rewrites the text of message msgID and drops every message
// after it. Image parts and the message ID are kept. The history returned is
// the resulting message sequence ending with the edited message. ok is false
// when the conversation or message does not exist.
func (c Conversations) EditAndTruncate(id, msgID, text string) (next Conversations, history []model.Message, ok bool) {
	conv, found := c[id]
	if !found {
		return c, nil, false
	}
	idx := conv.Index(msgID)
	if idx < 0 {
		return c, nil, false
	}

	edited := conv.Messages[idx].WithText(text)

	msgs := make([]model.Message, idx+1)
	copy(msgs, conv.Messages[:idx])
	msgs[idx] = edited

	conv.Messages = msgs
	conv.UpdatedAt = touch(conv.UpdatedAt, time.Now())

	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return c.with(conv), out, true
}

// Rename sets a new title. A missing ID is a no-op.
func (c Conversations) Rename(id, title string) Conversations {
	conv, ok := c[id]
	if !ok {
		return c
	}
	conv.Title = title
	conv.UpdatedAt = touch(conv.UpdatedAt, time.Now())
	return c.with(conv)
}

// Delete removes the conversation. A missing ID returns the receiver itself.
func (c Conversations) Delete(id string) Conversations {
	if _, ok := c[id]; !ok {
		return c
	}
	out := c.clone()
	delete(out, id)
	return out
}

// SetSystemInstruction sets or clears the per-conversation system
// instruction. A missing ID is a no-op.
func (c Conversations) SetSystemInstruction(id, instruction string) Conversations {
	conv, ok := c[id]
	if !ok {
		return c
	}
	conv.SystemInstruction = instruction
	conv.UpdatedAt = touch(conv.UpdatedAt, time.Now())
	return c.with(conv)
}

// touch returns the later of prev and t. Zero t keeps prev.
func touch(prev, t time.Time) time.Time {
	if t.After(prev) {
		return t
	}
	return prev
}
