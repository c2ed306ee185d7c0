// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// TEST HELPERS
// =============================================================================

func fragments(texts []string, err error) reconcile.ClientFunc {
	return func(ctx context.Context, req reconcile.Request) (iter.Seq2[string, error], error) {
		return func(yield func(string, error) bool) {
			for _, t := range texts {
				if !yield(t, nil) {
					return
				}
			}
			if err != nil {
				yield("", err)
			}
		}, nil
	}
}

// sendAndRun sends text and drives the resulting turn to completion.
func sendAndRun(t *testing.T, s Session, st *store.Store, client reconcile.Client, text string) Session {
	t.Helper()
	s, next, turn := s.Send(st.Snapshot(), text, nil, now)
	if turn == nil {
		t.Fatalf("Send(%q) returned no turn", text)
	}
	st.Commit(next)

	out, err := reconcile.New(client, zap.NewNop()).Run(context.Background(), st, *turn, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s, _, _ = s.ApplyOutcome(st.Snapshot(), out)
	return s
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_Hello(t *testing.T) {
	var s Session
	s, convs, turn := s.Send(store.Conversations{}, "Hello", nil, now)

	if convs.Len() != 1 {
		t.Fatalf("got %d conversations, want 1", convs.Len())
	}
	conv, ok := convs.Get(s.ActiveID)
	if !ok {
		t.Fatal("active conversation missing")
	}
	if conv.Title != "Hello" {
		t.Errorf("title = %q, want Hello", conv.Title)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(conv.Messages))
	}
	msg := conv.Messages[0]
	if msg.Role != model.RoleUser || len(msg.Parts) != 1 || msg.Parts[0] != (model.TextPart{Text: "Hello"}) {
		t.Errorf("message = %+v", msg)
	}

	if !s.Loading || s.Error != "" {
		t.Errorf("session = %+v", s)
	}
	if turn == nil || turn.ConversationID != conv.ID || len(turn.History) != 1 {
		t.Errorf("turn = %+v", turn)
	}
}

func TestSend_AppendsToActive(t *testing.T) {
	convs := store.Conversations{}
	conv := model.NewConversation("Existing", now)
	conv.SystemInstruction = "be terse"
	convs = convs.Create(conv)
	convs = convs.Append(conv.ID, model.NewUserMessage("first", nil, now))

	s := Session{ActiveID: conv.ID, Error: "old"}
	s, next, turn := s.Send(convs, "second", nil, now)

	if next.Len() != 1 {
		t.Errorf("new conversation created")
	}
	got, _ := next.Get(conv.ID)
	if got.Title != "Existing" || len(got.Messages) != 2 {
		t.Errorf("conversation = %+v", got)
	}
	if turn.SystemInstruction != "be terse" || len(turn.History) != 2 {
		t.Errorf("turn = %+v", turn)
	}
	if s.Error != "" {
		t.Error("Send should clear the banner")
	}
}

func TestSend_ImageOnly(t *testing.T) {
	img := &model.ImagePart{MIMEType: "image/png", Data: "AAAA"}

	var s Session
	s, convs, turn := s.Send(store.Conversations{}, "", img, now)
	if turn == nil {
		t.Fatal("image-only send should start a turn")
	}
	conv, _ := convs.Get(s.ActiveID)
	if conv.Title != model.ImageTitle {
		t.Errorf("title = %q", conv.Title)
	}
	if !conv.Messages[0].HasImage() {
		t.Error("image part missing")
	}
}

func TestSend_Ignored(t *testing.T) {
	convs := store.Conversations{}

	tests := []struct {
		name string
		s    Session
		text string
	}{
		{"blank", Session{}, "   \n"},
		{"loading", Session{Loading: true}, "hi"},
		{"streaming", Session{Streaming: true}, "hi"},
		{"editing", Session{EditingID: "user-x"}, "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, next, turn := tt.s.Send(convs, tt.text, nil, now)
			if turn != nil || next.Len() != 0 || s != tt.s {
				t.Errorf("expected no change, got %+v %d %+v", s, next.Len(), turn)
			}
		})
	}
}

// =============================================================================
// EDIT
// =============================================================================

func editable(t *testing.T) (Session, store.Conversations, []model.Message) {
	t.Helper()
	img := &model.ImagePart{MIMEType: "image/png", Data: "AAAA"}
	conv := model.NewConversation("c", now)
	msgs := []model.Message{
		model.NewUserMessage("one", img, now),
		model.NewPlaceholder(now).WithText("reply one"),
		model.NewUserMessage("two", nil, now),
		model.NewPlaceholder(now).WithText("reply two"),
	}
	convs := store.Conversations{}.Create(conv)
	for _, m := range msgs {
		convs = convs.Append(conv.ID, m)
	}
	return Session{ActiveID: conv.ID}, convs, msgs
}

func TestSaveEdit_TruncatesAndKeepsImages(t *testing.T) {
	s, convs, msgs := editable(t)

	s, _, _ = s.StartEdit(convs, msgs[0].ID)
	if s.EditingID != msgs[0].ID {
		t.Fatalf("EditingID = %q", s.EditingID)
	}

	s, next, turn := s.SaveEdit(convs, msgs[0].ID, "edited")
	if turn == nil {
		t.Fatal("SaveEdit returned no turn")
	}
	conv, _ := next.Get(s.ActiveID)
	if len(conv.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(conv.Messages))
	}
	edited := conv.Messages[0]
	if edited.ID != msgs[0].ID || edited.Text() != "edited" || !edited.HasImage() {
		t.Errorf("edited = %+v", edited)
	}
	if s.EditingID != "" || !s.Loading {
		t.Errorf("session = %+v", s)
	}
	if len(turn.History) != 1 {
		t.Errorf("history = %d messages", len(turn.History))
	}
}

func TestSaveEdit_Ignored(t *testing.T) {
	s, convs, msgs := editable(t)

	// Not in edit mode.
	if _, _, turn := s.SaveEdit(convs, msgs[2].ID, "x"); turn != nil {
		t.Error("SaveEdit without StartEdit should be ignored")
	}

	s, _, _ = s.StartEdit(convs, msgs[2].ID)
	if _, _, turn := s.SaveEdit(convs, msgs[0].ID, "x"); turn != nil {
		t.Error("SaveEdit for a different message should be ignored")
	}
	if _, _, turn := s.SaveEdit(convs, msgs[2].ID, "  "); turn != nil {
		t.Error("blank edit of a text-only message should be ignored")
	}
}

func TestStartEdit_Rules(t *testing.T) {
	s, convs, msgs := editable(t)

	if got, _, _ := s.StartEdit(convs, msgs[1].ID); got.EditingID != "" {
		t.Error("model messages are not editable")
	}
	if got, _, _ := s.StartEdit(convs, "user-missing"); got.EditingID != "" {
		t.Error("unknown message should be ignored")
	}
	busy := s
	busy.Streaming = true
	if got, _, _ := busy.StartEdit(convs, msgs[0].ID); got.EditingID != "" {
		t.Error("edit should be refused while streaming")
	}

	s, _, _ = s.StartEdit(convs, msgs[0].ID)
	if s.ShowTyping() {
		t.Error("typing indicator shown in edit mode")
	}
	s, next, _ := s.CancelEdit(convs)
	if s.EditingID != "" {
		t.Error("CancelEdit did not leave edit mode")
	}
	conv, _ := next.Get(s.ActiveID)
	if len(conv.Messages) != 4 {
		t.Error("CancelEdit changed the conversation")
	}
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

func TestSelectNewChatDelete(t *testing.T) {
	convs := store.Conversations{}
	a := model.NewConversation("a", now)
	b := model.NewConversation("b", now)
	convs = convs.Create(a).Create(b)

	s := Session{Error: "stale"}
	s, _, _ = s.Select(convs, a.ID)
	if s.ActiveID != a.ID || s.Error != "" {
		t.Errorf("after Select = %+v", s)
	}

	if got, _, _ := s.Select(convs, "convo-missing"); got.ActiveID != a.ID {
		t.Error("Select of an unknown id changed the selection")
	}

	s, convs, _ = s.Delete(convs, b.ID)
	if s.ActiveID != a.ID || convs.Len() != 1 {
		t.Errorf("deleting another conversation: %+v, %d left", s, convs.Len())
	}

	s, convs, _ = s.Delete(convs, a.ID)
	if s.ActiveID != "" || convs.Len() != 0 {
		t.Errorf("deleting the active conversation: %+v, %d left", s, convs.Len())
	}
	if msgs := Visible(s, convs); len(msgs) != 1 || msgs[0].ID != model.WelcomeID {
		t.Errorf("Visible = %+v, want welcome", msgs)
	}

	s, _, _ = s.Select(store.Conversations{}.Create(a), a.ID)
	s, _, _ = s.NewChat(convs)
	if s.ActiveID != "" {
		t.Error("NewChat kept the selection")
	}
}

func TestRename(t *testing.T) {
	conv := model.NewConversation("old", now)
	convs := store.Conversations{}.Create(conv)

	_, next, _ := Session{}.Rename(convs, conv.ID, "  new title  ")
	if got, _ := next.Get(conv.ID); got.Title != "new title" {
		t.Errorf("title = %q", got.Title)
	}

	_, next, _ = Session{}.Rename(convs, conv.ID, "   ")
	if got, _ := next.Get(conv.ID); got.Title != "old" {
		t.Errorf("blank rename changed title to %q", got.Title)
	}
}

func TestSetSystemInstruction(t *testing.T) {
	conv := model.NewConversation("c", now)
	convs := store.Conversations{}.Create(conv)

	_, next, _ := Session{}.SetSystemInstruction(convs, "ignored")
	if got, _ := next.Get(conv.ID); got.SystemInstruction != "" {
		t.Error("instruction set without an active conversation")
	}

	s := Session{ActiveID: conv.ID}
	_, next, _ = s.SetSystemInstruction(convs, " be kind ")
	if got, _ := next.Get(conv.ID); got.SystemInstruction != "be kind" {
		t.Errorf("instruction = %q", got.SystemInstruction)
	}

	s.Loading = true
	_, after, _ := s.SetSystemInstruction(next, "changed")
	if got, _ := after.Get(conv.ID); got.SystemInstruction != "be kind" {
		t.Error("instruction changed while loading")
	}
}

// =============================================================================
// STATUS
// =============================================================================

func TestToggleThemeAndAttachFailed(t *testing.T) {
	s := Session{Theme: model.ThemeLight}
	s, _, _ = s.ToggleTheme(nil)
	if s.Theme != model.ThemeDark {
		t.Errorf("Theme = %q", s.Theme)
	}

	convs := store.Conversations{}
	s, next, turn := s.AttachFailed(convs)
	if s.Error != AttachErrorText || turn != nil || next.Len() != 0 {
		t.Errorf("AttachFailed = %+v", s)
	}
	s, _, _ = s.DismissError(convs)
	if s.Error != "" {
		t.Error("DismissError kept the banner")
	}
}

func TestApplyOutcome(t *testing.T) {
	s := Session{Loading: true, Streaming: true}

	s, _, _ = s.ApplyOutcome(nil, reconcile.Outcome{})
	if s.Loading || !s.Streaming {
		t.Errorf("after Started = %+v", s)
	}

	s, _, _ = s.ApplyOutcome(nil, reconcile.Outcome{Err: "Error: boom", Done: true})
	if s.Busy() || s.Error != "Error: boom" {
		t.Errorf("after Failed = %+v", s)
	}
}

// =============================================================================
// END TO END
// =============================================================================

func TestTurn_Success(t *testing.T) {
	st := store.New(nil)
	st.Load(store.Conversations{})

	s := sendAndRun(t, Session{}, st, fragments([]string{"Hi", " there"}, nil), "Hello")
	if s.Busy() || s.Error != "" {
		t.Errorf("session = %+v", s)
	}

	msgs := Visible(s, st.Snapshot())
	if len(msgs) != 2 || msgs[1].Text() != "Hi there" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !s.CanSend() {
		t.Error("input still disabled after completion")
	}
}

func TestTurn_ErrorBeforeFragments(t *testing.T) {
	st := store.New(nil)
	st.Load(store.Conversations{})

	s := sendAndRun(t, Session{}, st, fragments(nil, errors.New("boom")), "Hello")
	if s.Loading || s.Error != "Error: boom" {
		t.Errorf("session = %+v", s)
	}

	msgs := Visible(s, st.Snapshot())
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want user, placeholder, apology", len(msgs))
	}
	if msgs[1].Text() != "" || msgs[2].Text() != model.ApologyText {
		t.Errorf("messages = %+v", msgs)
	}
	if st.InFlight(s.ActiveID) {
		t.Error("turn guard not released")
	}
}

func TestEmptyPersistReload_ShowsWelcome(t *testing.T) {
	kv := storage.NewMemoryKV()
	adapter := storage.NewAdapter(kv, zap.NewNop())

	st := store.New(adapter)
	st.Load(adapter.LoadConversations())
	st.Commit(store.Conversations{})

	// Fresh session over the same storage.
	reloaded := storage.NewAdapter(kv, zap.NewNop()).LoadConversations()
	msgs := Visible(Session{}, reloaded)
	if len(msgs) != 1 || msgs[0].ID != model.WelcomeID || msgs[0].Text() != model.WelcomeText {
		t.Errorf("Visible = %+v, want the welcome message", msgs)
	}
}

func TestCopyText(t *testing.T) {
	st := store.New(nil)
	st.Load(store.Conversations{})
	s := sendAndRun(t, Session{}, st, fragments([]string{"first ", "reply"}, nil), "question")
	s = sendAndRun(t, s, st, fragments([]string{"second reply"}, nil), "again")

	text, ok := CopyText(s, st.Snapshot(), "")
	if !ok || text != "second reply" {
		t.Errorf("CopyText(latest) = %q, %v", text, ok)
	}

	conv, _ := Active(s, st.Snapshot())
	text, ok = CopyText(s, st.Snapshot(), conv.Messages[0].ID)
	if !ok || text != "question" {
		t.Errorf("CopyText(selected) = %q, %v", text, ok)
	}

	// An unknown id falls back to the latest reply.
	if text, _ = CopyText(s, st.Snapshot(), "missing"); text != "second reply" {
		t.Errorf("CopyText(missing) = %q", text)
	}

	if _, ok = CopyText(Session{}, st.Snapshot(), ""); ok {
		t.Error("welcome screen has nothing to copy")
	}
}

func TestCopyText_NoReplyYet(t *testing.T) {
	s, next, _ := Session{}.Send(store.Conversations{}, "pending", nil, now)
	if _, ok := CopyText(s, next, ""); ok {
		t.Error("a conversation without a model reply has nothing to copy")
	}
}
