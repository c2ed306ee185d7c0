// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/app"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ollama"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// scriptedClient replies with reply to every request and records them.
type scriptedClient struct {
	reply    []string
	err      error
	requests []reconcile.Request
}

func (c *scriptedClient) Stream(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return func(yield func(string, error) bool) {
		for _, p := range c.reply {
			if !yield(p, nil) {
				return
			}
		}
	}, nil
}

func (c *scriptedClient) last(t *testing.T) reconcile.Request {
	t.Helper()
	require.NotEmpty(t, c.requests, "no request was sent")
	return c.requests[len(c.requests)-1]
}

type themeRecorder struct {
	saved []model.Theme
}

func (t *themeRecorder) SaveTheme(theme model.Theme) {
	t.saved = append(t.saved, theme)
}

func newTestRepl(t *testing.T, client reconcile.Client) (*Repl, *bytes.Buffer, *store.Store, *themeRecorder) {
	t.Helper()
	st := store.New(nil)
	st.Load(store.Conversations{})
	themes := &themeRecorder{}
	var out bytes.Buffer
	r := NewRepl(ReplOptions{
		Store:      st,
		Themes:     themes,
		Reconciler: reconcile.New(client, nil),
		Theme:      model.ThemeDark,
		Out:        &out,
	})
	return r, &out, st, themes
}

func activeConversation(t *testing.T, r *Repl, st *store.Store) model.Conversation {
	t.Helper()
	conv, ok := app.Active(r.Session(), st.Snapshot())
	require.True(t, ok, "no active conversation")
	return conv
}

// isolate points HOME and the gemchat variables at t's temp dirs.
func isolate(t *testing.T) (dataDir, configPath string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"API_KEY", "GEMINI_API_KEY", "GEMCHAT_PROVIDER", "GEMCHAT_MODEL",
		"GEMCHAT_STORAGE", "GEMCHAT_DATA_DIR", "GEMCHAT_REDIS_URL",
		"GEMCHAT_LOG_LEVEL", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
	return filepath.Join(home, "data"), filepath.Join(home, "config.toml")
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// seedHistory writes two conversations to the file backend in dir.
func seedHistory(t *testing.T, dir string) (older, newer model.Conversation) {
	t.Helper()
	kv, err := storage.NewFileKV(dir)
	require.NoError(t, err)
	adapter := storage.NewAdapter(kv, nil)
	defer adapter.Close()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	older = model.NewConversation("Alpha", base)
	older.Messages = []model.Message{model.NewUserMessage("first question", nil, base)}
	newer = model.NewConversation("Beta", base.Add(time.Hour))
	newer.Messages = []model.Message{model.NewUserMessage("second question", nil, base.Add(time.Hour))}

	adapter.SaveConversations(store.Conversations{}.Create(older).Create(newer))
	return older, newer
}

// =============================================================================
// FLAG TESTS
// =============================================================================

func TestApplyFlags_EphemeralWinsOverStorage(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyFlags(cfg, &Flags{Storage: "sqlite", Ephemeral: true}))
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
}

func TestApplyFlags_ModelFollowsProvider(t *testing.T) {
	cfg := config.Default()
	geminiModel := cfg.Gemini.Model

	require.NoError(t, applyFlags(cfg, &Flags{Provider: "Ollama", Model: "llava:13b"}))
	assert.Equal(t, model.ProviderOllama, cfg.Provider)
	assert.Equal(t, "llava:13b", cfg.Ollama.Model)
	assert.Equal(t, geminiModel, cfg.Gemini.Model)
	assert.Equal(t, "llava:13b", cfg.ModelName())
}

func TestApplyFlags_DataDirMovesDefaultLog(t *testing.T) {
	cfg := config.Default()
	cfg.SetDefaults()
	dir := t.TempDir()

	require.NoError(t, applyFlags(cfg, &Flags{DataDir: dir}))
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "gemchat.log"), cfg.Log.File)
}

func TestApplyFlags_Invalid(t *testing.T) {
	assert.Error(t, applyFlags(config.Default(), &Flags{Provider: "openai"}))
	assert.Error(t, applyFlags(config.Default(), &Flags{LogLevel: "loud"}))
}

// =============================================================================
// REPL TESTS
// =============================================================================

func TestRepl_SendStreamsReply(t *testing.T) {
	client := &scriptedClient{reply: []string{"Hi ", "there"}}
	r, out, st, _ := newTestRepl(t, client)

	require.NoError(t, r.Exec(context.Background(), "hello"))

	assert.Contains(t, out.String(), "Hi there")
	conv := activeConversation(t, r, st)
	assert.Equal(t, "hello", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Text())
	assert.False(t, r.Session().Busy())
	assert.False(t, st.InFlight(conv.ID))
}

func TestRepl_BlankInputIgnored(t *testing.T) {
	client := &scriptedClient{reply: []string{"x"}}
	r, _, st, _ := newTestRepl(t, client)

	require.NoError(t, r.Exec(context.Background(), "   "))
	assert.Empty(t, client.requests)
	assert.Equal(t, 0, st.Snapshot().Len())
}

func TestRepl_SendFailureAppendsApology(t *testing.T) {
	client := &scriptedClient{err: errors.New("quota exceeded")}
	r, out, st, _ := newTestRepl(t, client)

	err := r.Exec(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, out.String(), model.ApologyText)

	conv := activeConversation(t, r, st)
	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, model.ApologyText, last.Text())
	assert.NotEmpty(t, r.Session().Error)
	assert.False(t, r.Session().Busy())
}

func TestRepl_NewChatAndList(t *testing.T) {
	r, out, _, _ := newTestRepl(t, &scriptedClient{reply: []string{"ok"}})
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "first"))
	require.NoError(t, r.Exec(ctx, "/new"))
	assert.Empty(t, r.Session().ActiveID)

	require.NoError(t, r.Exec(ctx, "second"))
	out.Reset()
	require.NoError(t, r.Exec(ctx, "/list"))

	listing := out.String()
	assert.Contains(t, listing, "first")
	assert.Contains(t, listing, "second")
	assert.Less(t, strings.Index(listing, "second"), strings.Index(listing, "first"), "newest first")
}

func TestRepl_OpenPrintsTranscript(t *testing.T) {
	r, out, st, _ := newTestRepl(t, &scriptedClient{reply: []string{"the answer"}})
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "the question"))
	id := r.Session().ActiveID
	require.NoError(t, r.Exec(ctx, "/new"))
	out.Reset()

	require.NoError(t, r.Exec(ctx, "/open 1"))
	assert.Equal(t, id, r.Session().ActiveID)
	assert.Contains(t, out.String(), "the question")
	assert.Contains(t, out.String(), "the answer")
	assert.Error(t, r.Exec(ctx, "/open 7"))
	assert.Equal(t, 1, st.Snapshot().Len())
}

func TestRepl_Rename(t *testing.T) {
	r, _, st, _ := newTestRepl(t, &scriptedClient{reply: []string{"ok"}})
	ctx := context.Background()

	assert.Error(t, r.Exec(ctx, "/rename Trip"), "nothing open")
	require.NoError(t, r.Exec(ctx, "plan a trip"))
	assert.Error(t, r.Exec(ctx, "/rename"))
	require.NoError(t, r.Exec(ctx, "/rename Trip to Lisbon"))
	assert.Equal(t, "Trip to Lisbon", activeConversation(t, r, st).Title)
}

func TestRepl_DeleteAsksFirst(t *testing.T) {
	r, _, st, _ := newTestRepl(t, &scriptedClient{reply: []string{"ok"}})
	ctx := context.Background()
	require.NoError(t, r.Exec(ctx, "keep me?"))
	require.NoError(t, r.Exec(ctx, "latest question"))

	var asked string
	r.confirm = func(prompt string) bool { asked = prompt; return false }
	require.NoError(t, r.Exec(ctx, "/delete 1"))
	assert.Contains(t, asked, "keep me?")
	assert.Contains(t, asked, "latest question", "prompt previews the last user message")
	assert.Equal(t, 1, st.Snapshot().Len())

	r.confirm = func(string) bool { return true }
	require.NoError(t, r.Exec(ctx, "/delete 1"))
	assert.Equal(t, 0, st.Snapshot().Len())
	assert.Empty(t, r.Session().ActiveID)
}

func TestRepl_SystemInstructionSentWithNextTurn(t *testing.T) {
	client := &scriptedClient{reply: []string{"ok"}}
	r, _, st, _ := newTestRepl(t, client)
	ctx := context.Background()

	assert.Error(t, r.Exec(ctx, "/system be brief"), "nothing open")
	require.NoError(t, r.Exec(ctx, "hello"))
	require.NoError(t, r.Exec(ctx, "/system be brief"))
	assert.Equal(t, "be brief", activeConversation(t, r, st).SystemInstruction)

	require.NoError(t, r.Exec(ctx, "again"))
	assert.Equal(t, "be brief", client.last(t).SystemInstruction)
}

func TestRepl_EditRegenerates(t *testing.T) {
	client := &scriptedClient{reply: []string{"reply"}}
	r, _, st, _ := newTestRepl(t, client)
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "one"))
	require.NoError(t, r.Exec(ctx, "two"))
	require.Len(t, activeConversation(t, r, st).Messages, 4)

	require.NoError(t, r.Exec(ctx, "/edit 1 uno"))

	conv := activeConversation(t, r, st)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "uno", conv.Messages[0].Text())
	assert.Equal(t, "reply", conv.Messages[1].Text())

	req := client.last(t)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, model.RoleUser, req.Turns[0].Role)

	assert.Error(t, r.Exec(ctx, "/edit 5 nope"))
	assert.Error(t, r.Exec(ctx, "/edit x"))
	assert.Empty(t, r.Session().EditingID)
}

func TestRepl_Copy(t *testing.T) {
	client := &scriptedClient{reply: []string{"the ", "answer"}}
	r, out, _, _ := newTestRepl(t, client)
	var copied []string
	r.copy = func(text string) error {
		copied = append(copied, text)
		return nil
	}
	ctx := context.Background()

	assert.Error(t, r.Exec(ctx, "/copy"), "nothing is open yet")

	require.NoError(t, r.Exec(ctx, "question"))
	out.Reset()
	require.NoError(t, r.Exec(ctx, "/copy"))
	require.NoError(t, r.Exec(ctx, "/copy 1"))
	assert.Equal(t, []string{"the answer", "question"}, copied)
	assert.Contains(t, out.String(), "Copied 10 characters")

	assert.Error(t, r.Exec(ctx, "/copy 2"))
	assert.Error(t, r.Exec(ctx, "/copy x"))

	r.copy = func(string) error { return errors.New("no xclip") }
	err := r.Exec(ctx, "/copy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no xclip")
}

func TestRepl_AttachImage(t *testing.T) {
	client := &scriptedClient{reply: []string{"a red pixel"}}
	r, _, st, _ := newTestRepl(t, client)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "pixel.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	require.NoError(t, r.Exec(ctx, "/attach "+path))
	require.NotNil(t, r.pending)
	require.NoError(t, r.Exec(ctx, "what is this"))
	assert.Nil(t, r.pending)

	conv := activeConversation(t, r, st)
	assert.True(t, conv.Messages[0].HasImage())

	var sawImage bool
	for _, p := range client.last(t).Turns[0].Parts {
		if img, ok := p.(model.ImagePart); ok {
			sawImage = true
			assert.Equal(t, "image/png", img.MIMEType)
		}
	}
	assert.True(t, sawImage, "image part not sent")
}

func TestRepl_AttachRejectsNonImage(t *testing.T) {
	client := &scriptedClient{reply: []string{"x"}}
	r, _, _, _ := newTestRepl(t, client)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text\n"), 0o600))

	err := r.Exec(context.Background(), "/attach "+path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), app.AttachErrorText)
	assert.Equal(t, app.AttachErrorText, r.Session().Error)
	assert.Nil(t, r.pending)
	assert.Empty(t, client.requests)
}

func TestRepl_AttachClear(t *testing.T) {
	r, _, _, _ := newTestRepl(t, &scriptedClient{})
	r.pending = &model.ImagePart{MIMEType: "image/png", Data: "aGk="}

	require.NoError(t, r.Exec(context.Background(), "/attach"))
	assert.Nil(t, r.pending)
}

func TestRepl_ThemeToggleIsSaved(t *testing.T) {
	r, _, _, themes := newTestRepl(t, &scriptedClient{})

	require.NoError(t, r.Exec(context.Background(), "/theme"))
	assert.Equal(t, model.ThemeLight, r.Session().Theme)
	assert.Equal(t, []model.Theme{model.ThemeLight}, themes.saved)
}

func TestRepl_UnknownAndQuit(t *testing.T) {
	r, out, _, _ := newTestRepl(t, &scriptedClient{})
	ctx := context.Background()

	err := r.Exec(ctx, "/frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	require.NoError(t, r.Exec(ctx, "/help"))
	assert.Contains(t, out.String(), "/attach")

	for _, q := range []string{"/quit", "/q", "/exit"} {
		assert.ErrorIs(t, r.Exec(ctx, q), errQuit)
	}
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestHistoryCommands(t *testing.T) {
	_, cfgPath := isolate(t)
	dir := t.TempDir()
	older, newer := seedHistory(t, dir)
	common := []string{"--config", cfgPath, "--data-dir", dir}

	out, err := runRoot(t, append([]string{"history", "list"}, common...)...)
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "Beta"), strings.Index(out, "Alpha"), "newest first")

	out, err = runRoot(t, append([]string{"history", "show", "2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "# Alpha")
	assert.Contains(t, out, "first question")

	out, err = runRoot(t, append([]string{"history", "export", newer.ID, "--format", "json"}, common...)...)
	require.NoError(t, err)
	var exported model.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Equal(t, newer.ID, exported.ID)

	file := filepath.Join(t.TempDir(), "alpha.md")
	_, err = runRoot(t, append([]string{"history", "export", older.ID, "-o", file}, common...)...)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Alpha")

	_, err = runRoot(t, append([]string{"history", "export", "1", "--format", "pdf"}, common...)...)
	assert.Error(t, err)

	_, err = runRoot(t, append([]string{"history", "show", "nope"}, common...)...)
	assert.Error(t, err)

	_, err = runRoot(t, append([]string{"history", "delete", older.ID, "--yes"}, common...)...)
	require.NoError(t, err)
	out, err = runRoot(t, append([]string{"history", "list"}, common...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "Alpha")
	assert.Contains(t, out, "Beta")
}

func TestConfigCommands(t *testing.T) {
	_, cfgPath := isolate(t)
	common := []string{"--config", cfgPath}

	out, err := runRoot(t, append([]string{"config", "path"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, strings.TrimSpace(out))

	_, err = runRoot(t, append([]string{"config", "set", "ui.sidebar_width", "40"}, common...)...)
	require.NoError(t, err)

	out, err = runRoot(t, append([]string{"config", "get", "ui.sidebar_width"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "40", strings.TrimSpace(out))

	_, err = runRoot(t, append([]string{"config", "set", "ui.sidebar_width", "4"}, common...)...)
	assert.Error(t, err, "out of range")
	_, err = runRoot(t, append([]string{"config", "set", "ui.nope", "1"}, common...)...)
	assert.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "secret-key")
	out, err = runRoot(t, append([]string{"config", "get", "gemini.api_key"}, common...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-key")

	out, err = runRoot(t, append([]string{"config", "show"}, common...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "secret-key")
	assert.Contains(t, out, "sidebar_width = 40")

	out, err = runRoot(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "storage.backend")
}

func TestModelsCommand(t *testing.T) {
	out, err := runRoot(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, model.DefaultGeminiModel)
	assert.Contains(t, out, "PROVIDER")
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gemchat "+Version)
}

func TestRun_ReportsErrors(t *testing.T) {
	var stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	code := run(root, []string{"history", "show"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

// =============================================================================
// HIGHLIGHT TESTS
// =============================================================================

func TestHighlightFences(t *testing.T) {
	plain := "no code here\n"
	assert.Equal(t, plain, highlightFences(plain, model.ThemeDark))

	reply := "Try this:\n```go\nfunc main() {}\n```\nDone.\n"
	got := highlightFences(reply, model.ThemeDark)
	assert.Contains(t, got, "Try this:\n")
	assert.Contains(t, got, "Done.\n")
	assert.Contains(t, got, "\x1b[", "code should carry color escapes")
	assert.NotContains(t, got, "```")

	open := "start\n```python\nprint(1)\n"
	assert.Equal(t, open, highlightFences(open, model.ThemeLight), "unterminated fence is left alone")
}

func TestRepl_ColorTerminal(t *testing.T) {
	client := &scriptedClient{reply: []string{"Use:\n```go\nfunc main() {}\n```\n"}}
	r, out, _, _ := newTestRepl(t, client)
	r.color = true
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "how do I list files"))
	assert.Contains(t, out.String(), "```go", "raw stream is printed")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "/open 1"))
	assert.Contains(t, out.String(), "\x1b[")
	assert.NotContains(t, out.String(), "```go")
}

func TestModelsCommand_Installed(t *testing.T) {
	_, cfgPath := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"llava:latest","size":4700000000,"details":{"family":"llama"}}]}`))
	}))
	defer srv.Close()
	t.Setenv("OLLAMA_HOST", srv.URL)

	out, err := runRoot(t, "models", "--installed", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "llava:latest")
	assert.Contains(t, out, "4.7 GB")
	assert.Contains(t, out, "llama")
}

func TestOllamaHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ollama.ClientError{Type: ollama.ErrTypeNotRunning, Message: "down", Cause: errors.New("refused")}, "ollama serve"},
		{fmt.Errorf("list: %w", ollama.ErrTimeout), "OLLAMA_HOST"},
		{ollama.ErrModelNotFound, "ollama pull llava"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		got := ollamaHint(tt.err, "llava")
		if tt.want == "" {
			assert.Empty(t, got, tt.err.Error())
			continue
		}
		assert.Contains(t, got, tt.want, tt.err.Error())
	}
}
