// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by gemchat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - TruncateRunes / TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth: truncation by terminal display width
//   - OneLine: collapse a multi-line string for list display
//
// # Usage
//
//	title := util.TruncateRunesNoEllipsis(text, 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
