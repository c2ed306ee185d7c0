// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// Provider names accepted in configuration.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a model gemchat knows about.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider is ProviderGemini or ProviderOllama
	Provider string `json:"provider"`

	// MaxTokens is the input context window
	MaxTokens int `json:"max_tokens"`

	// Vision reports whether image parts are accepted
	Vision bool `json:"vision"`

	Description string `json:"description"`
}

// Catalog is the registry of well-known models. Any model ID is accepted in
// configuration; the catalog only supplies display metadata.
var Catalog = map[string]ModelInfo{
	"gemini-2.5-flash": {
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Provider:    ProviderGemini,
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Fast multimodal model, the default",
	},
	"gemini-2.5-pro": {
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Provider:    ProviderGemini,
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Strongest reasoning, slower",
	},
	"gemini-2.5-flash-lite": {
		ID:          "gemini-2.5-flash-lite",
		Name:        "Gemini 2.5 Flash-Lite",
		Provider:    ProviderGemini,
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Lowest latency and cost",
	},
	"llava": {
		ID:          "llava",
		Name:        "LLaVA",
		Provider:    ProviderOllama,
		MaxTokens:   4096,
		Vision:      true,
		Description: "Local vision model",
	},
	"llama3.2-vision": {
		ID:          "llama3.2-vision",
		Name:        "Llama 3.2 Vision",
		Provider:    ProviderOllama,
		MaxTokens:   131072,
		Vision:      true,
		Description: "Local vision model with long context",
	},
	"qwen2.5:7b": {
		ID:          "qwen2.5:7b",
		Name:        "Qwen 2.5 7B",
		Provider:    ProviderOllama,
		MaxTokens:   32768,
		Description: "Local text model",
	},
}

// ContextString formats the context window, e.g. "1M" or "32K".
func (m ModelInfo) ContextString() string {
	switch {
	case m.MaxTokens >= 1000000:
		return fmt.Sprintf("%dM", m.MaxTokens/1000000)
	case m.MaxTokens >= 1000:
		return fmt.Sprintf("%dK", m.MaxTokens/1000)
	case m.MaxTokens > 0:
		return fmt.Sprintf("%d", m.MaxTokens)
	default:
		return "?"
	}
}

// CapabilitiesString summarizes the model on one line.
func (m ModelInfo) CapabilitiesString() string {
	caps := []string{m.ContextString() + " context"}
	if m.Vision {
		caps = append(caps, "Vision")
	}
	if m.Provider == ProviderOllama {
		caps = append(caps, "Local")
	}
	return strings.Join(caps, ", ")
}

// LookupModel finds a model by ID, case-insensitively.
func LookupModel(id string) (ModelInfo, bool) {
	if info, ok := Catalog[id]; ok {
		return info, true
	}
	lower := strings.ToLower(id)
	for key, info := range Catalog {
		if strings.ToLower(key) == lower {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ModelsByProvider returns the catalog entries of one provider sorted by ID.
func ModelsByProvider(provider string) []ModelInfo {
	var out []ModelInfo
	for _, info := range Catalog {
		if info.Provider == provider {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
