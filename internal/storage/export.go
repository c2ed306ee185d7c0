// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// CONVERSATION EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as Markdown. Images are listed by
// type and size rather than embedded.
func ExportMarkdown(c model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + c.DisplayTitle() + "\n\n")
	if !c.CreatedAt.IsZero() {
		sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	}
	if c.SystemInstruction != "" {
		sb.WriteString("> System instruction: " + util.OneLine(c.SystemInstruction) + "\n\n")
	}
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		role := "**" + msg.Role.DisplayName() + "**"
		if !msg.CreatedAt.IsZero() {
			role += " (" + msg.CreatedAt.Format("15:04") + ")"
		}
		sb.WriteString(role + ":\n\n")
		for _, p := range msg.Parts {
			sb.WriteString(model.Match(p,
				func(t model.TextPart) string { return t.Text + "\n\n" },
				func(i model.ImagePart) string { return fmt.Sprintf("_[image: %s, %d bytes]_\n\n", i.MIMEType, i.Size()) },
			))
		}
		sb.WriteString("---\n\n")
	}

	return sb.String()
}

// ExportJSON returns the conversation as indented JSON in the stored shape.
func ExportJSON(c model.Conversation) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatConversationList formats conversations, already sorted, as a table.
// Row numbers start at 1.
func FormatConversationList(convs []model.Conversation) string {
	if len(convs) == 0 {
		return "No conversations found.\n"
	}

	var sb strings.Builder
	sb.WriteString(formatPadded("#", 4) + " " + formatPadded("Updated", 17) + " " + formatPadded("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")

	for i, c := range convs {
		updated := "-"
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		sb.WriteString(formatPadded(fmt.Sprintf("%d", i+1), 4) + " " +
			formatPadded(updated, 17) + " " +
			formatPadded(fmt.Sprintf("%d", len(c.Messages)), 5) + " " +
			util.TruncateWidth(c.DisplayTitle(), 40) + "\n")
	}
	return sb.String()
}

// formatPadded pads a string to the specified width with spaces.
func formatPadded(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
