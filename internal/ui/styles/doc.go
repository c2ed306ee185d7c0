// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the gemchat TUI.

All colors use Lip Gloss AdaptiveColor, so switching between the light and
dark theme is a matter of telling lipgloss which background to assume.

# Color System (colors.go)

  - Purple - Primary accent for model replies and selections
  - Cyan - Brand color and user highlights
  - Rose - Errors and the apology message
  - Amber - System instruction panel

# Theme (theme.go)

Theme bundles the lipgloss styles used by the chat view.

	theme := styles.NewTheme(model.ThemeDark)
	bubble := theme.AssistantBubble.Render(text)

Apply switches the process-wide lipgloss background and returns the
matching theme:

	theme := styles.Apply(session.Theme)

# Animations (animations.go)

Spinner frame sets for the typing indicator.
*/
package styles
