// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/store"
)

// Adapter maps the conversation mapping and theme onto a KV.
// Failures are logged and never returned: storage problems must not
// interrupt the chat.
type Adapter struct {
	kv     KV
	logger *zap.Logger
	// Save errors are throttled; commits happen once per streamed fragment.
	errLog rate.Sometimes
}

// NewAdapter wraps kv. A nil logger is replaced by a no-op logger.
func NewAdapter(kv KV, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		kv:     kv,
		logger: logger,
		errLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

// LoadConversations reads the stored mapping. A missing key, a read error, or
// a parse error all yield an empty mapping.
func (a *Adapter) LoadConversations() store.Conversations {
	raw, ok, err := a.kv.Get(ConversationsKey)
	if err != nil {
		a.logger.Error("failed to read conversations", zap.Error(err))
		return store.Conversations{}
	}
	if !ok || raw == "" {
		return store.Conversations{}
	}

	var convs store.Conversations
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		a.logger.Error("failed to parse stored conversations", zap.Error(err), zap.Int("bytes", len(raw)))
		return store.Conversations{}
	}
	if convs == nil {
		return store.Conversations{}
	}
	for id, conv := range convs {
		if conv.Messages == nil {
			conv.Messages = []model.Message{}
		}
		if conv.ID == "" {
			conv.ID = id
		}
		if conv.UpdatedAt.IsZero() {
			conv.UpdatedAt = legacyTimestamp(conv)
		}
		convs[id] = conv
	}
	return convs
}

// SaveConversations writes the full mapping. An empty mapping removes the key.
func (a *Adapter) SaveConversations(convs store.Conversations) {
	if len(convs) == 0 {
		if err := a.kv.Remove(ConversationsKey); err != nil {
			a.logSaveError("failed to clear conversations", err)
		}
		return
	}

	data, err := json.Marshal(convs)
	if err != nil {
		a.logSaveError("failed to encode conversations", err)
		return
	}
	if err := a.kv.Set(ConversationsKey, string(data)); err != nil {
		a.logSaveError("failed to write conversations", err)
	}
}

func (a *Adapter) logSaveError(msg string, err error) {
	a.errLog.Do(func() {
		a.logger.Error(msg, zap.Error(err))
	})
}

// LoadTheme returns the stored theme, if any.
func (a *Adapter) LoadTheme() (model.Theme, bool) {
	raw, ok, err := a.kv.Get(ThemeKey)
	if err != nil {
		a.logger.Warn("failed to read theme", zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	return model.ParseTheme(raw)
}

// SaveTheme stores the theme.
func (a *Adapter) SaveTheme(theme model.Theme) {
	if err := a.kv.Set(ThemeKey, string(theme)); err != nil {
		a.logger.Warn("failed to write theme", zap.Error(err))
	}
}

// Close closes the underlying KV.
func (a *Adapter) Close() error {
	return a.kv.Close()
}

// legacyTimestamp recovers an ordering time for snapshots written without
// timestamps. It prefers recorded CreatedAt values, then the millisecond
// clock embedded in the first message ID ("user-1712345678901"), then the
// one in the conversation ID. It returns the zero time when none applies.
func legacyTimestamp(conv model.Conversation) time.Time {
	if !conv.CreatedAt.IsZero() {
		return conv.CreatedAt
	}
	for _, m := range conv.Messages {
		if !m.CreatedAt.IsZero() {
			return m.CreatedAt
		}
	}
	if len(conv.Messages) > 0 {
		if t, ok := idMillis(conv.Messages[0].ID); ok {
			return t
		}
	}
	if t, ok := idMillis(conv.ID); ok {
		return t
	}
	return time.Time{}
}

// idMillis parses IDs of the form "<word>[-<word>...]-<unix millis>". IDs
// minted by this program carry a UUID instead and are rejected.
func idMillis(id string) (time.Time, bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return time.Time{}, false
	}
	for _, r := range id[:i] {
		if (r < 'a' || r > 'z') && r != '-' {
			return time.Time{}, false
		}
	}
	ms, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
