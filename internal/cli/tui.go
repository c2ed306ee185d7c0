// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/ui/chat"
)

// configDebounce lets editors finish writing before a reload.
const configDebounce = 300 * time.Millisecond

// runTUI starts the full-screen chat.
func runTUI(cmd *cobra.Command, flags *Flags) error {
	env, err := openEnv(flags)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := env.Client(ctx)
	if err != nil {
		return err
	}

	watcher, err := config.Watch(env.ConfigPath, configDebounce)
	if err != nil {
		env.Logger.Warn("config watch disabled", zap.Error(err))
		watcher = nil
	} else {
		defer watcher.Close()
	}

	m := chat.New(chat.Options{
		Store:        env.Store,
		Themes:       env.Adapter,
		Reconciler:   reconcile.New(client, env.Logger.Named("reconcile")),
		Theme:        env.Theme(),
		Provider:     env.Config.Provider,
		ModelName:    env.Config.ModelName(),
		SidebarWidth: env.Config.UI.SidebarWidth,
		Markdown:     env.Config.UI.Markdown,
		Watcher:      watcher,
		Logger:       env.Logger,
		Context:      ctx,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI failed: %w", err)
	}
	return nil
}
