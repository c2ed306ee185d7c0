// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/reconcile"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// EventMsg delivers one reconciler event. Events is the channel it came
// from, so the next wait can be scheduled.
type EventMsg struct {
	Event  reconcile.Event
	Events <-chan reconcile.Event
}

// StreamClosedMsg signals that a turn's event channel closed.
type StreamClosedMsg struct {
	ConversationID string
}

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigChangedMsg carries a reloaded configuration file.
type ConfigChangedMsg struct {
	Config *config.Config
}

// ConfigErrorMsg reports a config file that failed to reload.
type ConfigErrorMsg struct {
	Err error
}
