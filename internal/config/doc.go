// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for gemchat.
//
// Configuration is TOML with sensible defaults, a .env file, environment
// variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GeminiConfig, OllamaConfig: Model provider settings
//   - StorageConfig: Conversation storage backend
//   - UIConfig, LogConfig: Presentation and logging
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the caller)
//   - Environment variables (GEMCHAT_*, GEMINI_API_KEY, API_KEY, OLLAMA_HOST)
//   - .env in the working directory
//   - ~/.gemchat/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watch the file for edits:
//
//	w, err := config.Watch(path, 200*time.Millisecond)
//	for range w.Changes() { ... }
package config
