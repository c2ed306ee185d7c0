// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and the theme preference.
//
// Persistence is a flat string key-value store with four backends. The
// Adapter on top of it owns the two logical keys and the JSON encoding.
//
// # Key Types
//
//   - KV: Get/Set/Remove over string keys
//   - FileKV: one file per key, written atomically
//   - SQLiteKV: single kv table in a SQLite database
//   - RedisKV: Redis strings under an optional prefix
//   - MemoryKV: in-process map
//   - Adapter: typed load/save of conversations and theme
//
// # Usage
//
//	kv, err := storage.Open(storage.Options{Backend: storage.BackendFile, Dir: dataDir})
//	adapter := storage.NewAdapter(kv, logger)
//	convs := adapter.LoadConversations()
//
// # Storage Location
//
// The file and sqlite backends write under ~/.gemchat/ unless a data
// directory is configured.
package storage
