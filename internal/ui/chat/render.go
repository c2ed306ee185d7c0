// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// MESSAGE RENDERER
// =============================================================================

// renderer turns messages into styled transcript blocks. Model replies go
// through glamour; rendered text is cached per message until its text or
// the layout changes.
type renderer struct {
	markdown bool
	style    string
	width    int
	glam     *glamour.TermRenderer
	cache    map[string]cachedBlock
	logger   *zap.Logger
}

type cachedBlock struct {
	text string
	out  string
}

func newRenderer(logger *zap.Logger) *renderer {
	return &renderer{
		cache:  make(map[string]cachedBlock),
		logger: logger,
	}
}

// configure sets the glamour style and wrap width, dropping the cache when
// either changes.
func (r *renderer) configure(style string, width int, markdown bool) {
	if style == r.style && width == r.width && markdown == r.markdown {
		return
	}
	r.style = style
	r.width = width
	r.markdown = markdown
	r.cache = make(map[string]cachedBlock)
	r.glam = nil

	if !markdown || width <= 0 {
		return
	}
	glam, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r.logger.Warn("markdown renderer unavailable", zap.Error(err))
		return
	}
	r.glam = glam
}

// reset drops all cached output.
func (r *renderer) reset() {
	r.style = ""
	r.glam = nil
	r.cache = make(map[string]cachedBlock)
}

// markdownText renders model text, falling back to the raw text.
func (r *renderer) markdownText(id, text string) string {
	if r.glam == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if c, ok := r.cache[id]; ok && c.text == text {
		return c.out
	}
	out, err := r.glam.Render(text)
	if err != nil {
		r.logger.Debug("markdown render failed", zap.String("message", id), zap.Error(err))
		return text
	}
	out = strings.Trim(out, "\n")
	r.cache[id] = cachedBlock{text: text, out: out}
	return out
}

// =============================================================================
// BLOCKS
// =============================================================================

// messageView describes how one message is drawn.
type messageView struct {
	msg      model.Message
	selected bool
	editing  bool
}

// renderMessage renders a labelled bubble for one message.
func (r *renderer) renderMessage(t *styles.Theme, v messageView) string {
	msg := v.msg
	width := r.width
	if width <= 0 {
		width = 40
	}

	label := t.AssistantLabel.Render(msg.Role.DisplayName())
	bubble := t.AssistantBubble
	switch {
	case msg.Role == model.RoleUser:
		label = t.UserLabel.Render(msg.Role.DisplayName())
		bubble = t.UserBubble
	case msg.IsError():
		bubble = t.ApologyBubble
	case msg.ID == model.WelcomeID:
		bubble = t.WelcomeBubble
	}
	if v.editing {
		label += " " + t.EditingMarker.Render("editing")
	} else if v.selected {
		label += " " + t.EditingMarker.Render("*")
	}

	var body []string
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case model.ImagePart:
			body = append(body, t.ImageTag.Render(imageTag(part)))
		case model.TextPart:
			if part.Text == "" {
				continue
			}
			if msg.Role == model.RoleModel && !msg.IsError() {
				body = append(body, r.markdownText(msg.ID, part.Text))
			} else {
				body = append(body, part.Text)
			}
		}
	}
	if len(body) == 0 {
		return label
	}

	inner := width - bubble.GetHorizontalFrameSize()
	if inner < 10 {
		inner = 10
	}
	return label + "\n" + bubble.Width(inner).Render(strings.Join(body, "\n"))
}

// renderTranscript renders all messages separated by blank lines.
func (r *renderer) renderTranscript(t *styles.Theme, views []messageView) string {
	blocks := make([]string, 0, len(views))
	for _, v := range views {
		blocks = append(blocks, r.renderMessage(t, v))
	}
	return strings.Join(blocks, "\n\n")
}

// imageTag describes an image part in the transcript.
func imageTag(p model.ImagePart) string {
	return fmt.Sprintf("[image: %s, %s]", p.MIMEType, humanize.Bytes(uint64(p.Size())))
}
