// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"golang.org/x/term"
)

// Rendered markdown wraps to the terminal, within these bounds.
const (
	fallbackWrapWidth = 80
	minWrapWidth      = 40
	maxWrapWidth      = 120
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// interactive reports whether the full-screen UI can run: it needs a
// terminal on both ends.
func interactive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

// wrapWidth is the column count for markdown printed to stdout.
func wrapWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackWrapWidth
	}
	return min(max(width-4, minWrapWidth), maxWrapWidth)
}
