// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// =============================================================================
// PART SUM TYPE
// =============================================================================

// Part is one content unit of a message. The only implementations are
// TextPart and ImagePart.
type Part interface {
	isPart()
}

// TextPart holds plain text.
type TextPart struct {
	Text string
}

// ImagePart holds inline image data.
type ImagePart struct {
	MIMEType string
	Data     string // base64, standard encoding
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

// Size returns the decoded byte length of the image.
func (p ImagePart) Size() int {
	n, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return base64.StdEncoding.DecodedLen(len(p.Data))
	}
	return len(n)
}

// Bytes decodes the image payload.
func (p ImagePart) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Match dispatches on the variant of p. A nil part yields the zero T.
func Match[T any](p Part, onText func(TextPart) T, onImage func(ImagePart) T) T {
	switch v := p.(type) {
	case TextPart:
		return onText(v)
	case ImagePart:
		return onImage(v)
	default:
		var zero T
		return zero
	}
}

// =============================================================================
// PARTS
// =============================================================================

// Parts is an ordered part sequence. Order matters: text parts render
// concatenated in order, images render separately.
type Parts []Part

// Text returns the first text part and its index.
func (ps Parts) Text() (TextPart, int, bool) {
	for i, p := range ps {
		if t, ok := p.(TextPart); ok {
			return t, i, true
		}
	}
	return TextPart{}, -1, false
}

// Images returns the image parts in order.
func (ps Parts) Images() Parts {
	var out Parts
	for _, p := range ps {
		if img, ok := p.(ImagePart); ok {
			out = append(out, img)
		}
	}
	return out
}

// JoinText concatenates all text parts with no separator.
func (ps Parts) JoinText() string {
	var sb strings.Builder
	for _, p := range ps {
		if t, ok := p.(TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// AppendText returns a copy of ps whose first text part has fragment
// appended. When there is no text part one is added at the end.
func (ps Parts) AppendText(fragment string) Parts {
	out := ps.Clone()
	if t, i, ok := out.Text(); ok {
		out[i] = TextPart{Text: t.Text + fragment}
		return out
	}
	return append(out, TextPart{Text: fragment})
}

// Clone returns a copy with its own backing array. Part values are
// immutable so a shallow copy is enough.
func (ps Parts) Clone() Parts {
	if ps == nil {
		return nil
	}
	out := make(Parts, len(ps))
	copy(out, ps)
	return out
}

// =============================================================================
// JSON
// =============================================================================

// The persisted shape is {"text": ...} or {"inlineData": {...}}.
type wirePart struct {
	Text       *string   `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ErrUnknownPart is returned when a persisted part carries neither text nor
// inline data.
var ErrUnknownPart = errors.New("part has neither text nor inlineData")

// MarshalJSON implements json.Marshaler.
func (ps Parts) MarshalJSON() ([]byte, error) {
	wire := make([]wirePart, 0, len(ps))
	for _, p := range ps {
		switch v := p.(type) {
		case TextPart:
			text := v.Text
			wire = append(wire, wirePart{Text: &text})
		case ImagePart:
			wire = append(wire, wirePart{InlineData: &wireBlob{MIMEType: v.MIMEType, Data: v.Data}})
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var wire []wirePart
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Parts, 0, len(wire))
	for _, w := range wire {
		switch {
		case w.InlineData != nil:
			out = append(out, ImagePart{MIMEType: w.InlineData.MIMEType, Data: w.InlineData.Data})
		case w.Text != nil:
			out = append(out, TextPart{Text: *w.Text})
		default:
			return ErrUnknownPart
		}
	}
	*ps = out
	return nil
}
