// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/util"
)

// Export formats.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

func newHistoryCmd(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"h"},
		Short:   "Manage saved conversations",
		Long: `List, show, export and delete saved conversations.

A conversation is named by its number in "history list" or by its ID.`,
	}

	var format, output string
	var yes bool

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(flags, func(env *Env) error {
				fmt.Fprint(cmd.OutOrStdout(), storage.FormatConversationList(env.Store.Snapshot().Sorted()))
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(flags, func(env *Env) error {
				conv, err := resolveConversation(env.Store.Snapshot(), args[0])
				if err != nil {
					return err
				}
				md := storage.ExportMarkdown(conv)
				if isTerminal(os.Stdout) && env.Config.UI.Markdown {
					md = renderMarkdown(md, env.Theme())
				}
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			})
		},
	}

	export := &cobra.Command{
		Use:   "export ID",
		Short: "Export a conversation as Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(flags, func(env *Env) error {
				conv, err := resolveConversation(env.Store.Snapshot(), args[0])
				if err != nil {
					return err
				}
				data, err := exportConversation(conv, format)
				if err != nil {
					return err
				}
				if output == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := util.AtomicWriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %q to %s\n", conv.DisplayTitle(), output)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&format, "format", "f", FormatMarkdown, "export format: md or json")
	export.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(flags, func(env *Env) error {
				conv, err := resolveConversation(env.Store.Snapshot(), args[0])
				if err != nil {
					return err
				}
				if !yes {
					if !isTerminal(os.Stdin) {
						return errors.New("refusing to delete without --yes when stdin is not a terminal")
					}
					if !askYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %q?", conv.DisplayTitle())) {
						fmt.Fprintln(cmd.OutOrStdout(), "Kept.")
						return nil
					}
				}
				env.Store.Commit(env.Store.Snapshot().Delete(conv.ID))
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q.\n", conv.DisplayTitle())
				return nil
			})
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")

	cmd.AddCommand(list, show, export, del)
	return cmd
}

// withEnv runs fn with a started environment and closes it afterwards.
func withEnv(flags *Flags, fn func(*Env) error) error {
	env, err := openEnv(flags)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

// resolveConversation accepts a 1-based list number or a conversation ID.
func resolveConversation(convs store.Conversations, arg string) (model.Conversation, error) {
	if conv, ok := convs.Get(arg); ok {
		return conv, nil
	}
	if n, err := strconv.Atoi(arg); err == nil {
		sorted := convs.Sorted()
		if n >= 1 && n <= len(sorted) {
			return sorted[n-1], nil
		}
	}
	return model.Conversation{}, fmt.Errorf("conversation %q not found", arg)
}

func exportConversation(conv model.Conversation, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "markdown":
		return []byte(storage.ExportMarkdown(conv)), nil
	case FormatJSON:
		data, err := storage.ExportJSON(conv)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q (use md or json)", format)
	}
}

// renderMarkdown renders md for the terminal, or returns it unchanged when
// glamour cannot.
func renderMarkdown(md string, theme model.Theme) string {
	style := "light"
	if theme.IsDark() {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth()),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// askYesNo prompts on out and reads one line from in.
func askYesNo(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, warningStyle.Render(prompt)+" [y/N] ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
