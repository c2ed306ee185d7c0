// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/app"
	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// historyFileName holds plain-mode prompt history in the data dir.
const historyFileName = "prompt_history"

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

func newPlainCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "plain",
		Short: "Chat in line-oriented mode",
		Long: `Chat without the full-screen interface. Replies stream to stdout as
they arrive. Type /help for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlain(cmd, flags)
		},
	}
}

func runPlain(cmd *cobra.Command, flags *Flags) error {
	env, err := openEnv(flags)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	client, err := env.Client(ctx)
	if err != nil {
		return err
	}

	repl := NewRepl(ReplOptions{
		Store:      env.Store,
		Themes:     env.Adapter,
		Reconciler: reconcile.New(client, env.Logger.Named("reconcile")),
		Theme:      env.Theme(),
		Out:        cmd.OutOrStdout(),
		Logger:     env.Logger,
		Color:      isTerminal(os.Stdout),
	})

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	history := filepath.Join(env.Config.Storage.DataDir, historyFileName)
	loadHistory(line, history)
	defer func() {
		saveHistory(line, history, env.Logger)
		line.Close()
	}()

	repl.confirm = func(prompt string) bool {
		// liner measures the prompt itself, so keep escapes out of it.
		fmt.Fprintln(repl.out, warningStyle.Render(prompt))
		answer, err := line.Prompt("[y/N] ")
		return err == nil && strings.EqualFold(strings.TrimSpace(answer), "y")
	}

	repl.printWelcome(env.Config.Provider, env.Config.ModelName())
	for {
		input, err := line.Prompt("gemchat> ")
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed stdin.
			fmt.Fprintln(repl.out)
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if err := repl.Exec(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(repl.out, styles.RenderError(err.Error()))
		}
	}
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

func loadHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory persists prompt history with owner-only permissions.
func saveHistory(line *liner.State, path string, logger *zap.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logger.Warn("failed to create history directory", zap.Error(err))
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		logger.Warn("failed to save prompt history", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		logger.Warn("failed to save prompt history", zap.Error(err))
	}
}

// =============================================================================
// REPL
// =============================================================================

// ReplOptions configures a Repl.
type ReplOptions struct {
	Store      *store.Store
	Themes     interface{ SaveTheme(model.Theme) }
	Reconciler *reconcile.Reconciler
	Theme      model.Theme
	Out        io.Writer
	Logger     *zap.Logger
	// Color enables syntax highlighting in printed transcripts.
	Color bool
	// Clipboard receives /copy text. Defaults to the system clipboard.
	Clipboard func(string) error
}

// Repl executes plain-mode input lines against the shared session state.
type Repl struct {
	session app.Session
	store   *store.Store
	themes  interface{ SaveTheme(model.Theme) }
	rec     *reconcile.Reconciler
	out     io.Writer
	logger  *zap.Logger
	now     func() time.Time
	color   bool
	copy    func(string) error

	// pending is the image attached to the next message.
	pending *model.ImagePart

	// confirm asks a yes/no question. Nil answers no.
	confirm func(prompt string) bool
}

// NewRepl creates a Repl.
func NewRepl(opts ReplOptions) *Repl {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	copyText := opts.Clipboard
	if copyText == nil {
		copyText = clipboard.WriteAll
	}
	return &Repl{
		session: app.Session{Theme: opts.Theme},
		store:   opts.Store,
		themes:  opts.Themes,
		rec:     opts.Reconciler,
		out:     out,
		logger:  logger,
		now:     time.Now,
		color:   opts.Color,
		copy:    copyText,
	}
}

// Session returns the current session state.
func (r *Repl) Session() app.Session {
	return r.session
}

func (r *Repl) printWelcome(provider, modelName string) {
	fmt.Fprintln(r.out, welcomeStyle.Render("gemchat")+" "+dimStyle.Render(provider+"/"+modelName))
	fmt.Fprintln(r.out, model.WelcomeText)
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands."))
	fmt.Fprintln(r.out)
}

// Exec runs one input line. It returns errQuit for /quit.
func (r *Repl) Exec(ctx context.Context, input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return r.send(ctx, input)
	}

	name, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/q", "/exit":
		return errQuit
	case "/help", "/h":
		r.printHelp()
	case "/new":
		r.session, _, _ = r.session.NewChat(r.store.Snapshot())
		fmt.Fprintln(r.out, styles.RenderInfo("Started a new chat."))
	case "/list", "/ls":
		fmt.Fprint(r.out, storage.FormatConversationList(r.store.Snapshot().Sorted()))
	case "/open":
		return r.open(rest)
	case "/rename":
		return r.rename(rest)
	case "/delete":
		return r.delete(rest)
	case "/system":
		return r.system(rest)
	case "/edit":
		return r.edit(ctx, rest)
	case "/attach":
		return r.attach(ctx, rest)
	case "/copy":
		return r.copyMessage(rest)
	case "/theme":
		r.session, _, _ = r.session.ToggleTheme(r.store.Snapshot())
		if r.themes != nil {
			r.themes.SaveTheme(r.session.Theme)
		}
		fmt.Fprintln(r.out, styles.RenderInfo("Theme: "+string(r.session.Theme)))
	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

func (r *Repl) printHelp() {
	cmds := [][2]string{
		{"/new", "start a new chat"},
		{"/list", "list conversations, newest first"},
		{"/open N", "open conversation N from /list"},
		{"/rename TITLE", "rename the open conversation"},
		{"/delete N", "delete conversation N"},
		{"/system TEXT", "set the system instruction, empty clears it"},
		{"/edit N TEXT", "replace your Nth message and regenerate"},
		{"/attach PATH", "attach an image to the next message"},
		{"/copy [N]", "copy the last reply, or your Nth message"},
		{"/theme", "toggle light and dark"},
		{"/quit", "exit"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", commandStyle.Render(fmt.Sprintf("%-14s", c[0])), dimStyle.Render(c[1]))
	}
}

// =============================================================================
// SENDING
// =============================================================================

func (r *Repl) send(ctx context.Context, text string) error {
	if !r.session.CanSend() {
		return errors.New("a reply is still streaming")
	}
	s, next, turn := r.session.Send(r.store.Snapshot(), text, r.pending, r.now())
	if turn == nil {
		return nil
	}
	r.store.Commit(next)
	r.session = s
	r.pending = nil
	return r.runTurn(ctx, turn)
}

// runTurn streams a turn to stdout. Ctrl+C cancels the stream.
func (r *Repl) runTurn(ctx context.Context, turn *reconcile.Turn) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(r.out, labelStyle.Render(model.RoleModel.DisplayName()+":"))
	stopSpin := func() {}
	if r.color {
		stopSpin = r.spin()
	}
	out, err := r.rec.Run(ctx, r.store, *turn, func(ev reconcile.Event, _ reconcile.Outcome) {
		if f, ok := ev.(reconcile.Fragment); ok {
			stopSpin()
			fmt.Fprint(r.out, f.Text)
		}
	})
	stopSpin()
	fmt.Fprintln(r.out)

	r.session, _, _ = r.session.ApplyOutcome(r.store.Snapshot(), out)
	switch {
	case errors.Is(err, store.ErrTurnInFlight):
		return err
	case err != nil:
		fmt.Fprintln(r.out, warningStyle.Render("[Cancelled]"))
		return nil
	case out.Err != "":
		fmt.Fprintln(r.out, styles.RenderError(model.ApologyText))
		return errors.New(out.Err)
	}
	return nil
}

// spin animates a spinner until the returned stop func is called. stop
// erases the spinner and is safe to call more than once.
func (r *Repl) spin() (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		start := time.Now()
		ticker := time.NewTicker(styles.LineSpinner.Duration())
		defer ticker.Stop()
		for {
			fmt.Fprint(r.out, "\r"+dimStyle.Render(styles.LineSpinner.Frame(time.Since(start))))
			select {
			case <-done:
				fmt.Fprint(r.out, "\r \r")
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

// conversationAt resolves a 1-based /list index.
func (r *Repl) conversationAt(arg string) (model.Conversation, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	sorted := r.store.Snapshot().Sorted()
	if err != nil || n < 1 || n > len(sorted) {
		return model.Conversation{}, fmt.Errorf("no conversation %q (see /list)", arg)
	}
	return sorted[n-1], nil
}

func (r *Repl) open(arg string) error {
	conv, err := r.conversationAt(arg)
	if err != nil {
		return err
	}
	r.session, _, _ = r.session.Select(r.store.Snapshot(), conv.ID)
	fmt.Fprintln(r.out, welcomeStyle.Render(conv.DisplayTitle()))
	if conv.SystemInstruction != "" {
		fmt.Fprintln(r.out, dimStyle.Render("System: "+conv.SystemInstruction))
	}
	for _, msg := range conv.Messages {
		r.printMessage(msg)
	}
	return nil
}

func (r *Repl) printMessage(msg model.Message) {
	fmt.Fprintln(r.out, labelStyle.Render(msg.Role.DisplayName()+":"))
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case model.ImagePart:
			fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("[image: %s, %s]", part.MIMEType, humanize.Bytes(uint64(part.Size())))))
		case model.TextPart:
			text := part.Text
			if text == "" {
				continue
			}
			if r.color && msg.Role == model.RoleModel {
				text = highlightFences(text, r.session.Theme)
			}
			fmt.Fprintln(r.out, strings.TrimRight(text, "\n"))
		}
	}
	fmt.Fprintln(r.out)
}

func (r *Repl) rename(title string) error {
	if r.session.ActiveID == "" {
		return errors.New("open a conversation first")
	}
	if strings.TrimSpace(title) == "" {
		return errors.New("usage: /rename TITLE")
	}
	s, next, _ := r.session.Rename(r.store.Snapshot(), r.session.ActiveID, title)
	r.store.Commit(next)
	r.session = s
	fmt.Fprintln(r.out, styles.RenderSuccess("Renamed."))
	return nil
}

func (r *Repl) delete(arg string) error {
	conv, err := r.conversationAt(arg)
	if err != nil {
		return err
	}
	if r.confirm == nil || !r.confirm(fmt.Sprintf("Delete %q (%s)?", conv.DisplayTitle(), conv.Preview(50))) {
		fmt.Fprintln(r.out, warningStyle.Render("Kept."))
		return nil
	}
	s, next, _ := r.session.Delete(r.store.Snapshot(), conv.ID)
	r.store.Commit(next)
	r.session = s
	fmt.Fprintln(r.out, styles.RenderSuccess("Deleted."))
	return nil
}

func (r *Repl) system(text string) error {
	if !r.session.CanEditSystemInstruction() {
		return errors.New("open a conversation first")
	}
	s, next, _ := r.session.SetSystemInstruction(r.store.Snapshot(), text)
	r.store.Commit(next)
	r.session = s
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(r.out, styles.RenderSuccess("System instruction cleared."))
	} else {
		fmt.Fprintln(r.out, styles.RenderSuccess("System instruction set."))
	}
	return nil
}

// edit replaces the Nth user message of the open conversation.
func (r *Repl) edit(ctx context.Context, arg string) error {
	conv, ok := app.Active(r.session, r.store.Snapshot())
	if !ok {
		return errors.New("open a conversation first")
	}
	numStr, text, _ := strings.Cut(arg, " ")
	n, err := strconv.Atoi(numStr)
	if err != nil || n < 1 {
		return errors.New("usage: /edit N TEXT")
	}

	target, err := userMessageID(conv, n)
	if err != nil {
		return err
	}

	snap := r.store.Snapshot()
	s, _, _ := r.session.StartEdit(snap, target)
	s, next, turn := s.SaveEdit(snap, target, text)
	if turn == nil {
		return errors.New("nothing to send")
	}
	r.store.Commit(next)
	r.session = s
	return r.runTurn(ctx, turn)
}

// userMessageID returns the id of the nth (1-based) user message of conv.
func userMessageID(conv model.Conversation, n int) (string, error) {
	count := 0
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser {
			count++
			if count == n {
				return msg.ID, nil
			}
		}
	}
	return "", fmt.Errorf("no message %d (the conversation has %d)", n, count)
}

func (r *Repl) copyMessage(arg string) error {
	conv, ok := app.Active(r.session, r.store.Snapshot())
	if !ok {
		return errors.New("open a conversation first")
	}
	var target string
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return errors.New("usage: /copy [N]")
		}
		if target, err = userMessageID(conv, n); err != nil {
			return err
		}
	}

	text, ok := app.CopyText(r.session, r.store.Snapshot(), target)
	if !ok {
		return errors.New("nothing to copy")
	}
	if err := r.copy(text); err != nil {
		r.logger.Warn("clipboard write failed", zap.Error(err))
		return fmt.Errorf("copy failed: %w", err)
	}
	fmt.Fprintln(r.out, styles.RenderSuccess(fmt.Sprintf("Copied %s to the clipboard.", english.Plural(len([]rune(text)), "character", "characters"))))
	return nil
}

func (r *Repl) attach(ctx context.Context, path string) error {
	if path == "" {
		r.pending = nil
		fmt.Fprintln(r.out, styles.RenderInfo("Attachment removed."))
		return nil
	}
	img, err := attach.Load(ctx, path)
	if err != nil {
		r.logger.Warn("attachment rejected", zap.String("path", path), zap.Error(err))
		r.session, _, _ = r.session.AttachFailed(r.store.Snapshot())
		return fmt.Errorf("%s %w", app.AttachErrorText, err)
	}
	r.pending = &img
	fmt.Fprintln(r.out, styles.RenderSuccess(fmt.Sprintf("Attached %s (%s).", filepath.Base(path), img.MIMEType)))
	return nil
}
