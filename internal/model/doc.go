// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: titled transcript with an optional system instruction
//   - Message: role plus an ordered sequence of Parts
//   - Part: sealed sum type, either TextPart or ImagePart
//   - Turn: the role/parts pair handed to a model client
//   - ModelInfo: entry in the catalog of known models
//
// # Usage
//
//	msg := model.NewUserMessage("Hello", nil, time.Now())
//	conv := model.NewConversation(model.DeriveTitle("Hello", false), time.Now())
//	conv.Messages = append(conv.Messages, msg)
//
// Parts are inspected by type switch or with Match:
//
//	label := model.Match(p,
//	    func(t model.TextPart) string { return t.Text },
//	    func(i model.ImagePart) string { return "[image]" },
//	)
package model
