// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ollama"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// STARTUP ENVIRONMENT
// =============================================================================

// Env is everything a command needs after startup.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Adapter    *storage.Adapter
	Store      *store.Store
}

// loadConfig reads .env and the config file, then applies flag overrides.
func loadConfig(flags *Flags) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}

	path := flags.ConfigPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// applyFlags layers command-line flags over cfg and validates the result.
func applyFlags(cfg *config.Config, flags *Flags) error {
	if flags.Provider != "" {
		cfg.Provider = strings.ToLower(flags.Provider)
	}
	if flags.Model != "" {
		cfg.SetModel(flags.Model)
	}
	if flags.Storage != "" {
		cfg.Storage.Backend = flags.Storage
	}
	if flags.Ephemeral {
		cfg.Storage.Backend = storage.BackendMemory
	}
	if flags.DataDir != "" {
		// Keep the log next to the data unless it was placed elsewhere.
		if cfg.Log.File == filepath.Join(cfg.Storage.DataDir, "gemchat.log") {
			cfg.Log.File = ""
		}
		cfg.Storage.DataDir = flags.DataDir
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// openEnv performs the shared startup. The caller must Close the result.
func openEnv(flags *Flags) (*Env, error) {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewOrNop(cfg.Log)
	if err != nil {
		// Chat still works without a log file.
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}

	kv, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open storage",
			zap.String("backend", cfg.Storage.Backend),
			zap.Error(err),
		)
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	adapter := storage.NewAdapter(kv, logger.Named("storage"))
	st := store.New(adapter)
	st.Load(adapter.LoadConversations())

	logger.Info("started",
		zap.String("version", Version),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.ModelName()),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("conversations", st.Snapshot().Len()),
	)

	return &Env{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Adapter:    adapter,
		Store:      st,
	}, nil
}

// Close releases the storage backend and flushes the log.
func (e *Env) Close() error {
	err := e.Adapter.Close()
	_ = e.Logger.Sync()
	return err
}

// Client builds the model client for the configured provider.
func (e *Env) Client(ctx context.Context) (reconcile.Client, error) {
	cfg := e.Config
	switch cfg.Provider {
	case model.ProviderOllama:
		c := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Ollama.URL,
			DefaultModel: cfg.Ollama.Model,
		}).WithLogger(e.Logger)
		if err := c.CheckRunning(ctx); err != nil {
			// Sends still report the failure in the banner.
			e.Logger.Warn("ollama not reachable",
				zap.String("url", cfg.Ollama.URL),
				zap.String("hint", ollamaHint(err, cfg.Ollama.Model)),
				zap.Error(err),
			)
		}
		return c, nil
	default:
		return gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: cfg.GeminiTimeout(),
		}, e.Logger)
	}
}

// Theme resolves the starting theme: the stored preference, then the
// config file, then the terminal background.
func (e *Env) Theme() model.Theme {
	if t, ok := e.Adapter.LoadTheme(); ok {
		return t
	}
	if t, ok := e.Config.DefaultTheme(); ok {
		return t
	}
	return styles.DetectTheme()
}
