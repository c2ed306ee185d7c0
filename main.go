// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// gemchat is a terminal chat client for the Gemini API.
package main

import (
	"os"

	"github.com/jeranaias/gemchat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
