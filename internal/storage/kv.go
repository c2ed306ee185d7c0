// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Logical keys.
const (
	ConversationsKey = "gemini-chat-conversations"
	ThemeKey         = "gemini-chat-theme"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendFile, BackendSQLite, BackendRedis, BackendMemory}

// KV is a flat string key-value store.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Remove deletes the key. Removing a missing key is not an error.
	Remove(key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Dir is the data directory for the file backend and the default
	// location of the sqlite database.
	Dir string

	// SQLitePath overrides the database location.
	SQLitePath string

	RedisURL    string
	RedisPrefix string
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
// Use errors.Is(err, ErrUnknownBackend) to check for this error.
var ErrUnknownBackend = &StorageError{Message: "unknown storage backend"}

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing storage errors.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("invalid storage key")

// =============================================================================
// OPEN
// =============================================================================

// Open creates the backend named by opts.Backend.
func Open(opts Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendFile, "":
		return NewFileKV(opts.Dir)
	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.Dir, "gemchat.db")
		}
		return NewSQLiteKV(path)
	case BackendRedis:
		return NewRedisKV(opts.RedisURL, opts.RedisPrefix)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
