// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini streams generations from the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
)

// ErrMissingAPIKey is returned by Stream when no API key was configured.
var ErrMissingAPIKey = errors.New("API_KEY environment variable not set")

// Config configures the client.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string

	// Timeout bounds a single request. Zero means no limit.
	Timeout time.Duration
}

// Client implements reconcile.Client over google.golang.org/genai.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

var _ reconcile.Client = (*Client)(nil)

// New creates a client. A missing API key is not an error here; every
// Stream call then fails with ErrMissingAPIKey so the UI can report it.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Model
	if name == "" {
		name = model.DefaultGeminiModel
	}
	c := &Client{model: name, timeout: cfg.Timeout, logger: logger.Named("gemini")}

	if strings.TrimSpace(cfg.APIKey) == "" {
		c.logger.Warn("no API key configured")
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.genai = gc
	return c, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Stream implements reconcile.Client.
func (c *Client) Stream(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
	if c.genai == nil {
		return nil, ErrMissingAPIKey
	}

	contents, err := ToContents(req.Turns)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("nothing to send")
	}

	var config *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: req.SystemInstruction}},
			},
		}
	}

	c.logger.Debug("stream request",
		zap.String("model", c.model),
		zap.Int("contents", len(contents)),
		zap.Bool("system_instruction", config != nil),
	)

	return func(yield func(string, error) bool) {
		ctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// Content roles understood by the API.
const (
	roleUser  = "user"
	roleModel = "model"
)

// ToContents converts turns to SDK contents. Empty text parts are dropped
// and turns left without parts are skipped.
func ToContents(turns []model.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := roleUser
		if t.Role == model.RoleModel {
			role = roleModel
		}

		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			switch v := p.(type) {
			case model.TextPart:
				if v.Text == "" {
					continue
				}
				parts = append(parts, &genai.Part{Text: v.Text})
			case model.ImagePart:
				data, err := v.Bytes()
				if err != nil {
					return nil, fmt.Errorf("decode %s image: %w", v.MIMEType, err)
				}
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: v.MIMEType, Data: data},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}
