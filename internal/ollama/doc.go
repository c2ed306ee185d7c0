// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama streams chat completions from a local Ollama server.
//
// The client speaks the /api/chat endpoint with stream enabled and reads
// the newline-delimited JSON response. It implements reconcile.Client, so it
// can stand in for the hosted model.
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:      "http://127.0.0.1:11434",
//	    DefaultModel: "llava",
//	})
//	if err := client.CheckRunning(ctx); err != nil {
//	    // not reachable
//	}
//	seq, err := client.Stream(ctx, req)
//
// # Role Mapping
//
// The "model" role is sent as "assistant". Images are sent in the message
// images array as base64. A system instruction becomes a leading system
// message.
package ollama
