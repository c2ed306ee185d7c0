// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gemchat command line.
//
// Commands:
//
//	gemchat                  Start the chat TUI (plain mode when not a terminal)
//	gemchat plain            Line-oriented chat
//	gemchat history ...      List, show, export and delete conversations
//	gemchat config ...       Show and edit the configuration file
//	gemchat models           List known models
//	gemchat version          Print version information
//
// Every command shares the same startup: .env, the TOML config, flag
// overrides, the logger, then the storage backend. See openEnv.
package cli
