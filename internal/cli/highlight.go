// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// CODE FENCE HIGHLIGHTING
// =============================================================================

// highlightFences syntax-highlights the fenced code blocks of a reply.
// Text outside fences and unterminated fences are returned unchanged.
func highlightFences(text string, theme model.Theme) string {
	if !strings.Contains(text, "```") {
		return text
	}

	lines := strings.SplitAfter(text, "\n")
	var out, code strings.Builder
	var lang, opening string
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inFence && strings.HasPrefix(trimmed, "```"):
			inFence = true
			opening = line
			lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			code.Reset()
		case inFence && trimmed == "```":
			inFence = false
			out.WriteString(highlightCode(code.String(), lang, theme))
			if !strings.HasSuffix(out.String(), "\n") {
				out.WriteString("\n")
			}
		case inFence:
			code.WriteString(line)
		default:
			out.WriteString(line)
		}
	}
	if inFence {
		out.WriteString(opening)
		out.WriteString(code.String())
	}
	return out.String()
}

// highlightCode formats code for a 256-color terminal.
func highlightCode(code, language string, theme model.Theme) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	name := "monokai"
	if !theme.IsDark() {
		name = "github"
	}
	style := chromaStyles.Get(name)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
