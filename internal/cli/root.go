// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Flags holds the global command-line flags.
type Flags struct {
	ConfigPath string
	Provider   string
	Model      string
	Storage    string
	DataDir    string
	LogLevel   string
	Ephemeral  bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &Flags{}

	root := &cobra.Command{
		Use:   "gemchat",
		Short: "Chat with Gemini from the terminal",
		Long: `gemchat is a terminal chat client for the Gemini API.

Conversations, including image attachments, are kept on disk and restored
on the next start. The API key is read from API_KEY or GEMINI_API_KEY.

Examples:
  gemchat                          Start the chat TUI
  gemchat plain                    Line-oriented chat
  gemchat --provider ollama        Chat with a local Ollama model
  gemchat --storage sqlite         Keep conversations in SQLite
  gemchat history export 1 --format json`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive() {
				return runPlain(cmd, flags)
			}
			return runTUI(cmd, flags)
		},
	}
	root.SetVersionTemplate(versionString() + "\n")

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file (default ~/.gemchat/config.toml)")
	pf.StringVar(&flags.Provider, "provider", "", "model provider: gemini or ollama")
	pf.StringVarP(&flags.Model, "model", "m", "", "model name for the selected provider")
	pf.StringVar(&flags.Storage, "storage", "", "storage backend: file, sqlite, redis or memory")
	pf.StringVar(&flags.DataDir, "data-dir", "", "directory for conversations and logs")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flags.Ephemeral, "ephemeral", false, "keep conversations in memory only")

	root.AddCommand(
		newPlainCmd(flags),
		newHistoryCmd(flags),
		newConfigCmd(flags),
		newModelsCmd(flags),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// VERSION
// =============================================================================

func versionString() string {
	return fmt.Sprintf("gemchat %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
