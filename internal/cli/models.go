// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ollama"
)

func newModelsCmd(flags *Flags) *cobra.Command {
	var installed bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models",
		Long: `List the models gemchat has metadata for. Any model name the provider
accepts can be configured; this list is informational.

With --installed, ask the configured Ollama server what it has pulled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if installed {
				return listInstalled(cmd, flags)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tCAPABILITIES\tDESCRIPTION")
			for _, provider := range config.Providers {
				for _, m := range model.ModelsByProvider(provider) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						m.Provider, m.ID, m.ContextString(), m.CapabilitiesString(), m.Description)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&installed, "installed", false, "list models pulled into the local Ollama server")
	return cmd
}

func listInstalled(cmd *cobra.Command, flags *Flags) error {
	cfg, _, err := loadConfig(flags)
	if err != nil {
		return err
	}
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: cfg.Ollama.URL})
	models, err := client.ListModels(cmd.Context())
	if err != nil {
		if hint := ollamaHint(err, cfg.Ollama.Model); hint != "" {
			return fmt.Errorf("failed to list models at %s: %w (%s)", cfg.Ollama.URL, err, hint)
		}
		return fmt.Errorf("failed to list models at %s: %w", cfg.Ollama.URL, err)
	}
	if len(models) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No models installed. Try: ollama pull llava")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tFAMILY\tMODIFIED")
	for _, m := range models {
		modified := "-"
		if !m.ModifiedAt.IsZero() {
			modified = humanize.Time(m.ModifiedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, humanize.Bytes(uint64(m.Size)), m.Details.Family, modified)
	}
	return w.Flush()
}

// ollamaHint suggests a fix for a failed Ollama call, or "" when it has none.
func ollamaHint(err error, modelName string) string {
	switch {
	case ollama.IsNotRunning(err):
		return "start it with: ollama serve"
	case ollama.IsTimeout(err):
		return "the server is slow to answer; check OLLAMA_HOST"
	case ollama.IsModelNotFound(err):
		return "pull the model with: ollama pull " + modelName
	default:
		return ""
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
