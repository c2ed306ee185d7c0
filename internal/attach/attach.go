// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach turns image files into message parts.
//
// The MIME type is sniffed from the file content, never from the extension.
// Only image/* files are accepted.
package attach

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"

	"github.com/jeranaias/gemchat/internal/model"
)

// MaxBytes is the largest file Load accepts.
const MaxBytes = 20 << 20

var (
	// ErrNotImage is returned for files whose content is not an image.
	ErrNotImage = errors.New("file is not an image")

	// ErrTooLarge is returned for files over MaxBytes.
	ErrTooLarge = errors.New("file is too large")

	// ErrEmpty is returned for zero-length files.
	ErrEmpty = errors.New("file is empty")
)

// Load reads path and returns it as an inline image part.
func Load(ctx context.Context, path string) (model.ImagePart, error) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return model.ImagePart{}, errors.New("no file given")
	}

	f, err := os.Open(path)
	if err != nil {
		return model.ImagePart{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > MaxBytes {
		return model.ImagePart{}, fmt.Errorf("%s: %w (%d bytes, limit %d)", path, ErrTooLarge, info.Size(), MaxBytes)
	}

	// Read one byte past the limit to catch files that grew after Stat.
	data, err := io.ReadAll(io.LimitReader(f, MaxBytes+1))
	if err != nil {
		return model.ImagePart{}, fmt.Errorf("read attachment: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return model.ImagePart{}, err
	}

	return FromBytes(data)
}

// FromBytes validates data and encodes it as an image part.
func FromBytes(data []byte) (model.ImagePart, error) {
	switch {
	case len(data) == 0:
		return model.ImagePart{}, ErrEmpty
	case len(data) > MaxBytes:
		return model.ImagePart{}, ErrTooLarge
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return model.ImagePart{}, fmt.Errorf("%w: detected %s", ErrNotImage, mime.String())
	}

	return model.ImagePart{
		MIMEType: mediaType(mime.String()),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// mediaType strips parameters such as "; charset=utf-8" that mimetype
// reports for text-based images like SVG.
func mediaType(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// =============================================================================
// BUBBLETEA INTEGRATION
// =============================================================================

// LoadedMsg carries the result of LoadCmd.
type LoadedMsg struct {
	Path  string
	Image model.ImagePart
	Err   error
}

// LoadCmd reads path off the UI goroutine.
func LoadCmd(ctx context.Context, path string) tea.Cmd {
	return func() tea.Msg {
		img, err := Load(ctx, path)
		return LoadedMsg{Path: path, Image: img, Err: err}
	}
}
