// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

var (
	// welcomeStyle renders the greeting
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// labelStyle renders role labels in transcripts
	labelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Bold(true)

	// dimStyle is used for hints and metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// commandStyle renders slash commands in help output
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// warningStyle renders confirmations and cancellations
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)
)
