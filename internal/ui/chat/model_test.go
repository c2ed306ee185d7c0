// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemchat/internal/app"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recordingTurns starts real reconciler turns and remembers each one.
type recordingTurns struct {
	rec    *reconcile.Reconciler
	turns  []reconcile.Turn
	events <-chan reconcile.Event
}

func (r *recordingTurns) Start(ctx context.Context, turn reconcile.Turn) <-chan reconcile.Event {
	r.turns = append(r.turns, turn)
	r.events = r.rec.Start(ctx, turn)
	return r.events
}

type themeRecorder struct {
	saved []model.Theme
}

func (t *themeRecorder) SaveTheme(theme model.Theme) {
	t.saved = append(t.saved, theme)
}

func fragments(parts ...string) reconcile.ClientFunc {
	return func(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
		return func(yield func(string, error) bool) {
			for _, p := range parts {
				if !yield(p, nil) {
					return
				}
			}
		}, nil
	}
}

type harness struct {
	st     *store.Store
	turns  *recordingTurns
	themes *themeRecorder
}

func newTestModel(t *testing.T, client reconcile.Client) (Model, *harness) {
	t.Helper()
	st := store.New(nil)
	st.Load(store.Conversations{})
	h := &harness{
		st:     st,
		turns:  &recordingTurns{rec: reconcile.New(client, nil)},
		themes: &themeRecorder{},
	}
	m := New(Options{
		Store:      st,
		Themes:     h.themes,
		Reconciler: h.turns,
		Theme:      model.ThemeDark,
		Provider:   model.ProviderGemini,
		ModelName:  model.DefaultGeminiModel,
	})
	m = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, h
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyType(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m Model, s string) Model {
	return update(m, runes(s))
}

// drain feeds every event of the last started turn into the model.
func drain(t *testing.T, m Model, h *harness) Model {
	t.Helper()
	if h.turns.events == nil {
		t.Fatal("no turn started")
	}
	events := h.turns.events
	for ev := range events {
		m = update(m, EventMsg{Event: ev, Events: events})
	}
	h.turns.events = nil
	return m
}

// sendAndDrain types text, presses Enter and runs the turn to completion.
func sendAndDrain(t *testing.T, m Model, h *harness, text string) Model {
	t.Helper()
	m = typeText(m, text)
	m = update(m, keyType(tea.KeyEnter))
	return drain(t, m, h)
}

func activeConversation(t *testing.T, m Model) model.Conversation {
	t.Helper()
	conv, ok := app.Active(m.session, m.store.Snapshot())
	if !ok {
		t.Fatal("no active conversation")
	}
	return conv
}

// =============================================================================
// SENDING
// =============================================================================

func TestSend_StreamsReply(t *testing.T) {
	m, h := newTestModel(t, fragments("Hi", " there"))

	m = typeText(m, "Hello")
	m = update(m, keyType(tea.KeyEnter))

	if !m.session.Loading || !m.session.Streaming {
		t.Fatalf("session after send = %+v, want loading and streaming", m.session)
	}
	if m.composer.Value() != "" {
		t.Errorf("composer not cleared: %q", m.composer.Value())
	}
	conv := activeConversation(t, m)
	if conv.Title != "Hello" {
		t.Errorf("title = %q, want Hello", conv.Title)
	}
	if !h.st.InFlight(conv.ID) {
		t.Error("turn guard not taken")
	}

	m = drain(t, m, h)

	conv = activeConversation(t, m)
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}
	if got := conv.Messages[1].Text(); got != "Hi there" {
		t.Errorf("reply = %q, want %q", got, "Hi there")
	}
	if m.session.Busy() {
		t.Error("session still busy after completion")
	}
	if h.st.InFlight(conv.ID) {
		t.Error("turn guard not released")
	}
	if !strings.Contains(m.transcript(), "Hi there") {
		t.Error("transcript does not show reply")
	}
}

func TestSend_IgnoredWhileBusy(t *testing.T) {
	m, h := newTestModel(t, fragments("ok"))

	m = typeText(m, "first")
	m = update(m, keyType(tea.KeyEnter))
	m = typeText(m, "second")
	m = update(m, keyType(tea.KeyEnter))

	if len(h.turns.turns) != 1 {
		t.Errorf("started %d turns, want 1", len(h.turns.turns))
	}
	if m.composer.Value() != "" {
		t.Errorf("typing reached the composer while busy: %q", m.composer.Value())
	}
	m = drain(t, m, h)

	m = typeText(m, "second")
	m = update(m, keyType(tea.KeyEnter))
	if len(h.turns.turns) != 2 {
		t.Errorf("started %d turns, want 2", len(h.turns.turns))
	}
	drain(t, m, h)
}

func TestSend_BlankIgnored(t *testing.T) {
	m, h := newTestModel(t, fragments("ok"))

	m = typeText(m, "   ")
	m = update(m, keyType(tea.KeyEnter))

	if len(h.turns.turns) != 0 {
		t.Error("blank input started a turn")
	}
	if m.store.Snapshot().Len() != 0 {
		t.Error("blank input created a conversation")
	}
}

func TestSend_FailureShowsBanner(t *testing.T) {
	client := reconcile.ClientFunc(func(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
		return nil, errors.New("boom")
	})
	m, h := newTestModel(t, client)
	m = sendAndDrain(t, m, h, "Hello")

	if m.session.Error != "Error: boom" {
		t.Errorf("Error = %q", m.session.Error)
	}
	if !strings.Contains(m.View(), "Error: boom") {
		t.Error("banner not rendered")
	}
	conv := activeConversation(t, m)
	last, _ := conv.Last()
	if !last.IsError() || last.Text() != model.ApologyText {
		t.Errorf("last message = %+v, want apology", last)
	}
	if m.session.Busy() {
		t.Error("session still busy after failure")
	}

	m = update(m, keyType(tea.KeyCtrlX))
	if m.session.Error != "" {
		t.Error("banner not dismissed")
	}
}

// =============================================================================
// EDITING
// =============================================================================

func TestEdit_RegeneratesFromEditedMessage(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "first")
	userID := activeConversation(t, m).Messages[0].ID

	m = update(m, keyType(tea.KeyCtrlE))
	if m.session.EditingID != userID {
		t.Fatalf("EditingID = %q, want %q", m.session.EditingID, userID)
	}
	if m.editor.Value() != "first" {
		t.Errorf("editor = %q", m.editor.Value())
	}
	if m.session.CanSend() {
		t.Error("composer enabled while editing")
	}

	m.editor.SetValue("second")
	m = update(m, keyType(tea.KeyEnter))

	turn := h.turns.turns[len(h.turns.turns)-1]
	if len(turn.History) != 1 || turn.History[0].Text() != "second" {
		t.Fatalf("history = %+v", turn.History)
	}
	m = drain(t, m, h)

	conv := activeConversation(t, m)
	if len(conv.Messages) != 2 || conv.Messages[0].ID != userID || conv.Messages[0].Text() != "second" {
		t.Errorf("messages = %+v", conv.Messages)
	}
	if m.session.EditingID != "" {
		t.Error("still editing after save")
	}
}

func TestEdit_Cancel(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "first")

	m = update(m, keyType(tea.KeyCtrlE))
	m.editor.SetValue("changed")
	m = update(m, keyType(tea.KeyEsc))

	if m.session.EditingID != "" {
		t.Error("edit not cancelled")
	}
	if got := activeConversation(t, m).Messages[0].Text(); got != "first" {
		t.Errorf("text = %q, want unchanged", got)
	}
	if len(h.turns.turns) != 1 {
		t.Error("cancel started a turn")
	}
}

func TestEdit_SelectsEarlierPrompt(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "one")
	m = sendAndDrain(t, m, h, "two")

	m = update(m, keyType(tea.KeyCtrlUp))
	m = update(m, keyType(tea.KeyCtrlUp))
	m = update(m, keyType(tea.KeyCtrlE))

	if m.editor.Value() != "one" {
		t.Errorf("editing %q, want the first prompt", m.editor.Value())
	}
}

// echo replies with "re: " and the text of the last turn.
func echo() reconcile.ClientFunc {
	return func(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
		last := req.Turns[len(req.Turns)-1].Parts.JoinText()
		return fragments("re: " + last)(ctx, req)
	}
}

// clipboardRecorder stands in for the system clipboard.
type clipboardRecorder struct {
	writes []string
	err    error
}

func (c *clipboardRecorder) write(text string) error {
	if c.err != nil {
		return c.err
	}
	c.writes = append(c.writes, text)
	return nil
}

func TestCopy_LatestReplyOrSelection(t *testing.T) {
	m, h := newTestModel(t, echo())
	clip := &clipboardRecorder{}
	m.copyText = clip.write

	m = update(m, keyType(tea.KeyCtrlY))
	if len(clip.writes) != 0 || m.notice != "nothing to copy" {
		t.Fatalf("welcome copy: writes=%v notice=%q", clip.writes, m.notice)
	}

	m = sendAndDrain(t, m, h, "one")
	m = sendAndDrain(t, m, h, "two")

	m = update(m, keyType(tea.KeyCtrlY))
	if len(clip.writes) != 1 || clip.writes[0] != "re: two" {
		t.Fatalf("writes = %v, want the latest reply", clip.writes)
	}
	if m.notice != "copied to clipboard" {
		t.Errorf("notice = %q", m.notice)
	}

	m = update(m, keyType(tea.KeyCtrlUp))
	m = update(m, keyType(tea.KeyCtrlUp))
	m = update(m, keyType(tea.KeyCtrlY))
	if len(clip.writes) != 2 || clip.writes[1] != "one" {
		t.Errorf("writes = %v, want the selected prompt", clip.writes)
	}
	if !strings.Contains(m.View(), "copied to clipboard") {
		t.Error("status line does not report the copy")
	}
}

func TestCopy_ReportsFailure(t *testing.T) {
	m, h := newTestModel(t, echo())
	m.copyText = (&clipboardRecorder{err: errors.New("no xclip")}).write

	m = sendAndDrain(t, m, h, "hello")
	m = update(m, keyType(tea.KeyCtrlY))

	if m.notice != "copy failed: no xclip" {
		t.Errorf("notice = %q", m.notice)
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestNewChat_ShowsWelcome(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "Hello")

	m = update(m, keyType(tea.KeyCtrlN))

	if m.session.ActiveID != "" {
		t.Errorf("ActiveID = %q after new chat", m.session.ActiveID)
	}
	msgs := app.Visible(m.session, m.store.Snapshot())
	if len(msgs) != 1 || msgs[0].ID != model.WelcomeID {
		t.Errorf("visible = %+v, want welcome", msgs)
	}
	if m.store.Snapshot().Len() != 1 {
		t.Error("new chat should not create a conversation before sending")
	}
}

func TestSidebar_SelectRenameDelete(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "alpha")
	m = update(m, keyType(tea.KeyCtrlN))
	m = sendAndDrain(t, m, h, "beta")

	sorted := m.store.Snapshot().Sorted()
	if len(sorted) != 2 {
		t.Fatalf("got %d conversations", len(sorted))
	}

	m = update(m, keyType(tea.KeyTab))
	if m.focus != focusSidebar {
		t.Fatal("tab did not focus the sidebar")
	}
	m = update(m, keyType(tea.KeyDown))
	m = update(m, keyType(tea.KeyEnter))
	if m.session.ActiveID != sorted[1].ID {
		t.Errorf("selected %q, want %q", m.session.ActiveID, sorted[1].ID)
	}
	if m.focus != focusComposer {
		t.Error("select should return focus to the composer")
	}

	// Rename the highlighted entry.
	m = update(m, keyType(tea.KeyTab))
	m = update(m, runes("r"))
	if m.overlay != overlayRename {
		t.Fatal("rename dialog not open")
	}
	m.rename.SetValue("Renamed")
	m = update(m, keyType(tea.KeyEnter))
	if conv, _ := m.store.Snapshot().Get(sorted[1].ID); conv.Title != "Renamed" {
		t.Errorf("title = %q", conv.Title)
	}

	// Declining keeps the conversation.
	m = update(m, runes("d"))
	if m.overlay != overlayDelete {
		t.Fatal("delete confirmation not open")
	}
	m = update(m, runes("n"))
	if m.store.Snapshot().Len() != 2 {
		t.Fatal("declined delete removed the conversation")
	}

	target := m.store.Snapshot().Sorted()[m.cursor].ID
	m = update(m, runes("d"))
	m = update(m, runes("y"))
	if _, ok := m.store.Snapshot().Get(target); ok {
		t.Error("conversation not deleted")
	}
	if target == sorted[1].ID && m.session.ActiveID != "" {
		t.Error("deleting the active conversation should clear the selection")
	}
}

func TestSystemInstruction_SentWithNextTurn(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))

	m = update(m, keyType(tea.KeyCtrlP))
	if m.focus == focusSystem {
		t.Fatal("system panel should need an active conversation")
	}

	m = sendAndDrain(t, m, h, "Hello")
	m = update(m, keyType(tea.KeyCtrlP))
	if m.focus != focusSystem {
		t.Fatal("system panel not focused")
	}
	m.system.SetValue("  be terse  ")
	m = update(m, keyType(tea.KeyEnter))

	if got := activeConversation(t, m).SystemInstruction; got != "be terse" {
		t.Errorf("SystemInstruction = %q", got)
	}

	m = sendAndDrain(t, m, h, "again")
	if got := h.turns.turns[1].SystemInstruction; got != "be terse" {
		t.Errorf("turn instruction = %q", got)
	}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func attachPath(m Model, path string) Model {
	m = update(m, keyType(tea.KeyCtrlO))
	m.attachInput.SetValue(path)
	return update(m, keyType(tea.KeyEnter))
}

func TestAttach_SendsImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")
	path := writeFile(t, "pic.png", png)

	m, h := newTestModel(t, fragments("a picture"))
	m = attachPath(m, path)
	if m.pendingPath != path {
		t.Fatalf("pendingPath = %q", m.pendingPath)
	}

	m, cmd := updateCmd(m, keyType(tea.KeyEnter))
	if !m.attaching || cmd == nil {
		t.Fatal("send with attachment should load the file first")
	}
	m = update(m, cmd())
	m = drain(t, m, h)

	conv := activeConversation(t, m)
	if conv.Title != model.ImageTitle {
		t.Errorf("title = %q, want %q", conv.Title, model.ImageTitle)
	}
	first := conv.Messages[0]
	if !first.HasImage() {
		t.Fatal("user message has no image")
	}
	img := first.Parts[0].(model.ImagePart)
	if img.MIMEType != "image/png" || img.Data != base64.StdEncoding.EncodeToString(png) {
		t.Errorf("image = %+v", img)
	}
	if m.pendingPath != "" {
		t.Error("attachment not cleared after send")
	}
	if !strings.Contains(m.transcript(), "[image: image/png") {
		t.Error("transcript has no image tag")
	}
}

func TestAttach_RejectsNonImage(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("just some text"))

	m, h := newTestModel(t, fragments("unused"))
	m = attachPath(m, path)
	m = typeText(m, "look")

	m, cmd := updateCmd(m, keyType(tea.KeyEnter))
	m = update(m, cmd())

	if m.session.Error != app.AttachErrorText {
		t.Errorf("Error = %q", m.session.Error)
	}
	if len(h.turns.turns) != 0 {
		t.Error("rejected attachment started a turn")
	}
	if m.composer.Value() != "look" {
		t.Errorf("composer = %q, want text kept", m.composer.Value())
	}
	if m.store.Snapshot().Len() != 0 {
		t.Error("rejected attachment created a conversation")
	}
}

// =============================================================================
// THEME, CONFIG AND STREAM LIFECYCLE
// =============================================================================

func TestToggleTheme_Persists(t *testing.T) {
	m, h := newTestModel(t, fragments())

	m = update(m, keyType(tea.KeyCtrlT))

	if m.session.Theme != model.ThemeLight || m.theme.Name != model.ThemeLight {
		t.Errorf("theme = %q/%q, want light", m.session.Theme, m.theme.Name)
	}
	if len(h.themes.saved) != 1 || h.themes.saved[0] != model.ThemeLight {
		t.Errorf("saved = %v", h.themes.saved)
	}

	m = update(m, keyType(tea.KeyCtrlT))
	if m.session.Theme != model.ThemeDark {
		t.Error("second toggle should return to dark")
	}
}

func TestConfigChanged_AppliesUISettings(t *testing.T) {
	m, _ := newTestModel(t, fragments())

	cfg := config.Default()
	cfg.UI.SidebarWidth = 40
	cfg.UI.Markdown = false
	m = update(m, ConfigChangedMsg{Config: cfg})

	if m.sidebarWidth != 40 {
		t.Errorf("sidebarWidth = %d", m.sidebarWidth)
	}
	if m.markdown {
		t.Error("markdown not disabled")
	}
	if m.computeLayout().sidebar != 40 {
		t.Errorf("layout sidebar = %d", m.computeLayout().sidebar)
	}

	m = update(m, ConfigErrorMsg{Err: errors.New("bad toml")})
	if !strings.Contains(m.notice, "bad toml") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestStreamClosed_ReleasesGuard(t *testing.T) {
	m, h := newTestModel(t, fragments())
	if err := h.st.BeginTurn("convo-x"); err != nil {
		t.Fatal(err)
	}
	m.session.Streaming = true

	m = update(m, StreamClosedMsg{ConversationID: "convo-x"})

	if h.st.InFlight("convo-x") {
		t.Error("guard not released")
	}
	if m.session.Busy() {
		t.Error("session still busy")
	}
}

func TestView_NarrowHidesSidebar(t *testing.T) {
	m, h := newTestModel(t, fragments("reply"))
	m = sendAndDrain(t, m, h, "Hello")

	if !strings.Contains(m.View(), "Conversations") {
		t.Error("wide view should show the sidebar")
	}
	m = update(m, tea.WindowSizeMsg{Width: 50, Height: 30})
	if strings.Contains(m.View(), "Conversations") {
		t.Error("narrow view should hide the sidebar")
	}
}

func TestImageTag(t *testing.T) {
	data := base64.StdEncoding.EncodeToString(make([]byte, 2048))
	got := imageTag(model.ImagePart{MIMEType: "image/jpeg", Data: data})
	if got != "[image: image/jpeg, 2.0 kB]" {
		t.Errorf("imageTag = %q", got)
	}
}
