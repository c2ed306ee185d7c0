// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/gemchat/internal/app"
	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/reconcile"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// FOCUS AND OVERLAYS
// =============================================================================

// focus is the pane receiving keys.
type focus int

const (
	focusComposer focus = iota
	focusSidebar
	focusSystem
)

// overlay is a modal dialog drawn over the body.
type overlay int

const (
	overlayNone overlay = iota
	overlayRename
	overlayDelete
	overlayAttach
	overlayHelp
)

// =============================================================================
// OPTIONS
// =============================================================================

// ThemeSaver persists the theme preference.
type ThemeSaver interface {
	SaveTheme(model.Theme)
}

// Turns starts reconciler turns. *reconcile.Reconciler implements it.
type Turns interface {
	Start(ctx context.Context, turn reconcile.Turn) <-chan reconcile.Event
}

// Options configures a chat Model.
type Options struct {
	Store      *store.Store
	Themes     ThemeSaver
	Reconciler Turns

	Theme     model.Theme
	Provider  string
	ModelName string

	// SidebarWidth is the sidebar's outer width in columns.
	SidebarWidth int
	// Markdown renders model replies through glamour.
	Markdown bool

	// Watcher delivers config reloads. Optional.
	Watcher *config.Watcher

	Logger  *zap.Logger
	Context context.Context

	// Now is the clock used for new messages. Defaults to time.Now.
	Now func() time.Time

	// Clipboard receives copied text. Defaults to the system clipboard.
	Clipboard func(string) error
}

const defaultSidebarWidth = 28

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	session    app.Session
	store      *store.Store
	themes     ThemeSaver
	reconciler Turns
	watcher    *config.Watcher
	logger     *zap.Logger
	ctx        context.Context
	now        func() time.Time
	copyText   func(string) error

	// Styling
	theme    *styles.Theme
	renderer *renderer
	keys     KeyMap
	help     help.Model

	// Components
	composer    textarea.Model
	editor      textarea.Model
	system      textinput.Model
	rename      textinput.Model
	attachInput textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model

	// UI state
	focus        focus
	overlay      overlay
	cursor       int
	targetID     string // conversation a rename or delete applies to
	selectedMsg  string // user message ctrl+e edits
	pendingPath  string // image attached to the next send
	attaching    bool
	follow       bool
	notice       string
	provider     string
	modelName    string
	sidebarWidth int
	markdown     bool

	// Dimensions
	width  int
	height int
	ready  bool
}

// New creates a chat model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	width := opts.SidebarWidth
	if width <= 0 {
		width = defaultSidebarWidth
	}
	name := opts.Theme
	if _, ok := model.ParseTheme(string(name)); !ok {
		name = styles.DetectTheme()
	}

	copyText := opts.Clipboard
	if copyText == nil {
		copyText = clipboard.WriteAll
	}

	keys := DefaultKeyMap()
	m := Model{
		session:      app.Session{Theme: name},
		store:        opts.Store,
		themes:       opts.Themes,
		reconciler:   opts.Reconciler,
		watcher:      opts.Watcher,
		logger:       logger.Named("tui"),
		ctx:          ctx,
		now:          now,
		copyText:     copyText,
		theme:        styles.Apply(name),
		renderer:     newRenderer(logger),
		keys:         keys,
		help:         help.New(),
		composer:     newComposer(keys, "Type a message..."),
		editor:       newComposer(keys, "Edit your message..."),
		system:       newInput("System instruction for this conversation", 0),
		rename:       newInput("Conversation title", 120),
		attachInput:  newInput("Path to an image file", 0),
		viewport:     viewport.New(80, 20),
		spinner:      newSpinner(),
		provider:     opts.Provider,
		modelName:    opts.ModelName,
		sidebarWidth: width,
		markdown:     opts.Markdown,
	}
	m.editor.SetHeight(5)
	m.spinner.Style = m.theme.Spinner
	m.composer.Focus()
	return m
}

func newComposer(keys KeyMap, placeholder string) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(3)
	// Enter sends; newlines need a modifier.
	ta.KeyMap.InsertNewline = keys.Newline
	return ta
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "> "
	ti.CharLimit = limit
	return ti
}

func newSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = styles.DotsSpinner.Bubble()
	return s
}

// Init starts the cursor blink and the config watch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForConfig(m.watcher))
}

// Session returns the current session state.
func (m Model) Session() app.Session {
	return m.session
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.help.Width = msg.Width
		m.ready = true
		m.follow = true

	case tea.KeyMsg:
		m, cmd = m.handleKey(msg)

	case EventMsg:
		m, cmd = m.handleEvent(msg)

	case StreamClosedMsg:
		m = m.handleStreamClosed(msg)

	case attach.LoadedMsg:
		m, cmd = m.handleAttachLoaded(msg)

	case ConfigChangedMsg:
		m = m.applyConfig(msg.Config)
		cmd = waitForConfig(m.watcher)

	case ConfigErrorMsg:
		m.logger.Warn("config reload failed", zap.Error(msg.Err))
		m.notice = "config not reloaded: " + msg.Err.Error()
		cmd = waitForConfig(m.watcher)

	case spinner.TickMsg:
		if m.session.Busy() {
			m.spinner, cmd = m.spinner.Update(msg)
		}

	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
	}

	m.refresh()
	return m, cmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.overlay != overlayNone {
		return m.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NewChat):
		m = m.apply(m.session.NewChat)
		m.selectedMsg = ""
		m.follow = true
		cmd := m.focusPane(focusComposer)
		return m, cmd

	case key.Matches(msg, m.keys.ToggleTheme):
		return m.toggleTheme(), nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil

	case key.Matches(msg, m.keys.DismissError):
		m = m.apply(m.session.DismissError)
		m.notice = ""
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.session.EditingID != "" {
		return m.handleEditorKey(msg)
	}

	switch m.focus {
	case focusSidebar:
		return m.handleSidebarKey(msg)
	case focusSystem:
		return m.handleSystemKey(msg)
	default:
		return m.handleComposerKey(msg)
	}
}

func (m Model) handleComposerKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.FocusSidebar):
		cmd := m.focusPane(focusSidebar)
		return m, cmd

	case key.Matches(msg, m.keys.System):
		if !m.session.CanEditSystemInstruction() {
			return m, nil
		}
		conv, _ := app.Active(m.session, m.store.Snapshot())
		m.system.SetValue(conv.SystemInstruction)
		m.system.CursorEnd()
		cmd := m.focusPane(focusSystem)
		return m, cmd

	case key.Matches(msg, m.keys.Attach):
		if !m.canCompose() {
			return m, nil
		}
		m.attachInput.SetValue(m.pendingPath)
		m.attachInput.CursorEnd()
		m.overlay = overlayAttach
		cmd := m.attachInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		return m.startEdit()

	case key.Matches(msg, m.keys.Copy):
		return m.copyReply(), nil

	case key.Matches(msg, m.keys.PrevUser):
		m.selectedMsg = m.stepUserMessage(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextUser):
		m.selectedMsg = m.stepUserMessage(1)
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.pendingPath = ""
		m.selectedMsg = ""
		return m, nil

	case key.Matches(msg, m.keys.Send):
		return m.send()
	}

	if !m.canCompose() {
		return m, nil
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	convs := m.store.Snapshot().Sorted()
	switch {
	case key.Matches(msg, m.keys.FocusSidebar), key.Matches(msg, m.keys.Cancel):
		cmd := m.focusPane(focusComposer)
		return m, cmd

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
		return m, nil
	}

	if len(convs) == 0 {
		return m, nil
	}
	target := convs[clamp(m.cursor, 0, len(convs)-1)]

	switch {
	case key.Matches(msg, m.keys.Select):
		m = m.apply(func(c store.Conversations) (app.Session, store.Conversations, *reconcile.Turn) {
			return m.session.Select(c, target.ID)
		})
		m.selectedMsg = ""
		m.follow = true
		cmd := m.focusPane(focusComposer)
		return m, cmd

	case key.Matches(msg, m.keys.Rename):
		m.targetID = target.ID
		m.rename.SetValue(target.Title)
		m.rename.CursorEnd()
		m.overlay = overlayRename
		cmd := m.rename.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Delete):
		m.targetID = target.ID
		m.overlay = overlayDelete
		return m, nil
	}
	return m, nil
}

func (m Model) handleSystemKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		cmd := m.focusPane(focusComposer)
		return m, cmd

	case msg.Type == tea.KeyEnter:
		value := m.system.Value()
		m = m.apply(func(c store.Conversations) (app.Session, store.Conversations, *reconcile.Turn) {
			return m.session.SetSystemInstruction(c, value)
		})
		cmd := m.focusPane(focusComposer)
		return m, cmd
	}

	var cmd tea.Cmd
	m.system, cmd = m.system.Update(msg)
	return m, cmd
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m = m.apply(m.session.CancelEdit)
		m.editor.Reset()
		m.editor.Blur()
		cmd := m.focusPane(focusComposer)
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		id, text := m.session.EditingID, m.editor.Value()
		s, next, turn := m.session.SaveEdit(m.store.Snapshot(), id, text)
		if turn == nil {
			return m, nil
		}
		m.store.Commit(next)
		m.session = s
		m.selectedMsg = ""
		m.editor.Reset()
		m.editor.Blur()
		m.follow = true
		cmd := tea.Batch(m.focusPane(focusComposer), m.startTurn(turn))
		return m, cmd
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.overlay {
	case overlayHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Cancel) {
			m.overlay = overlayNone
		}
		return m, nil

	case overlayDelete:
		switch {
		case key.Matches(msg, m.keys.ConfirmDelete):
			id := m.targetID
			m = m.apply(func(c store.Conversations) (app.Session, store.Conversations, *reconcile.Turn) {
				return m.session.Delete(c, id)
			})
			m.closeOverlay()
		case key.Matches(msg, m.keys.DeclineDelete):
			m.closeOverlay()
		}
		return m, nil

	case overlayRename:
		switch msg.Type {
		case tea.KeyEsc:
			m.closeOverlay()
			return m, nil
		case tea.KeyEnter:
			id, title := m.targetID, m.rename.Value()
			m = m.apply(func(c store.Conversations) (app.Session, store.Conversations, *reconcile.Turn) {
				return m.session.Rename(c, id, title)
			})
			m.closeOverlay()
			return m, nil
		}
		var cmd tea.Cmd
		m.rename, cmd = m.rename.Update(msg)
		return m, cmd

	case overlayAttach:
		switch msg.Type {
		case tea.KeyEsc:
			m.closeOverlay()
			return m, nil
		case tea.KeyEnter:
			m.pendingPath = strings.TrimSpace(m.attachInput.Value())
			m.closeOverlay()
			return m, nil
		}
		var cmd tea.Cmd
		m.attachInput, cmd = m.attachInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// =============================================================================
// ACTIONS
// =============================================================================

// apply runs a session handler against the current snapshot and commits
// the result. Handlers that start turns go through send or SaveEdit.
func (m Model) apply(fn func(store.Conversations) (app.Session, store.Conversations, *reconcile.Turn)) Model {
	before := m.store.Snapshot()
	s, next, _ := fn(before)
	m.session = s
	if !sameMapping(before, next) {
		m.store.Commit(next)
	}
	return m
}

// canCompose reports whether the composer accepts keys.
func (m Model) canCompose() bool {
	return m.session.CanSend() && !m.attaching
}

// send submits the composer. With an attachment pending the image is
// loaded first and the send completes in handleAttachLoaded.
func (m Model) send() (Model, tea.Cmd) {
	if !m.canCompose() {
		return m, nil
	}
	if m.pendingPath != "" {
		m.attaching = true
		return m, attach.LoadCmd(m.ctx, m.pendingPath)
	}
	return m.submit(nil)
}

func (m Model) submit(image *model.ImagePart) (Model, tea.Cmd) {
	s, next, turn := m.session.Send(m.store.Snapshot(), m.composer.Value(), image, m.now())
	if turn == nil {
		return m, nil
	}
	m.store.Commit(next)
	m.session = s
	m.composer.Reset()
	m.pendingPath = ""
	m.selectedMsg = ""
	m.follow = true
	cmd := m.startTurn(turn)
	return m, cmd
}

func (m Model) handleAttachLoaded(msg attach.LoadedMsg) (Model, tea.Cmd) {
	m.attaching = false
	if msg.Err != nil {
		m.logger.Warn("attachment rejected", zap.String("path", msg.Path), zap.Error(msg.Err))
		m = m.apply(m.session.AttachFailed)
		m.pendingPath = ""
		return m, nil
	}
	img := msg.Image
	return m.submit(&img)
}

// startTurn takes the conversation's guard and starts streaming.
func (m *Model) startTurn(turn *reconcile.Turn) tea.Cmd {
	if turn == nil || m.reconciler == nil {
		return nil
	}
	if err := m.store.BeginTurn(turn.ConversationID); err != nil {
		m.session, _, _ = m.session.ApplyOutcome(m.store.Snapshot(), reconcile.Outcome{
			Err:  "Error: " + err.Error(),
			Done: true,
		})
		return nil
	}
	events := m.reconciler.Start(m.ctx, *turn)
	return tea.Batch(waitForEvent(turn.ConversationID, events), m.spinner.Tick)
}

func (m Model) handleEvent(msg EventMsg) (Model, tea.Cmd) {
	var out reconcile.Outcome
	m.store.Update(func(c store.Conversations) store.Conversations {
		var next store.Conversations
		next, out = reconcile.Apply(c, msg.Event)
		return next
	})
	m.session, _, _ = m.session.ApplyOutcome(m.store.Snapshot(), out)

	if reconcile.Terminal(msg.Event) {
		m.store.EndTurn(msg.Event.Conversation())
		if f, ok := msg.Event.(reconcile.Failed); ok {
			m.logger.Warn("turn failed", zap.String("conversation", f.ConversationID), zap.Error(f.Err))
		}
		return m, nil
	}
	return m, waitForEvent(msg.Event.Conversation(), msg.Events)
}

// handleStreamClosed releases a turn whose channel closed without a
// terminal event.
func (m Model) handleStreamClosed(msg StreamClosedMsg) Model {
	if !m.store.InFlight(msg.ConversationID) {
		return m
	}
	m.store.EndTurn(msg.ConversationID)
	m.session, _, _ = m.session.ApplyOutcome(m.store.Snapshot(), reconcile.Outcome{Done: true})
	return m
}

func (m Model) startEdit() (Model, tea.Cmd) {
	conv, ok := app.Active(m.session, m.store.Snapshot())
	if !ok {
		return m, nil
	}
	id := m.selectedMsg
	if conv.Index(id) < 0 {
		id = lastUserMessage(conv)
	}
	m = m.apply(func(c store.Conversations) (app.Session, store.Conversations, *reconcile.Turn) {
		return m.session.StartEdit(c, id)
	})
	if m.session.EditingID == "" {
		return m, nil
	}
	m.editor.SetValue(conv.Messages[conv.Index(id)].Text())
	m.composer.Blur()
	cmd := m.editor.Focus()
	return m, cmd
}

// stepUserMessage moves the edit selection among user messages.
func (m Model) stepUserMessage(delta int) string {
	conv, ok := app.Active(m.session, m.store.Snapshot())
	if !ok {
		return ""
	}
	var ids []string
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser {
			ids = append(ids, msg.ID)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	pos := len(ids)
	for i, id := range ids {
		if id == m.selectedMsg {
			pos = i
		}
	}
	return ids[clamp(pos+delta, 0, len(ids)-1)]
}

func (m Model) toggleTheme() Model {
	m = m.apply(m.session.ToggleTheme)
	m.theme = styles.Apply(m.session.Theme)
	m.theme.SetSize(m.width, m.height)
	m.spinner.Style = m.theme.Spinner
	m.renderer.reset()
	if m.themes != nil {
		m.themes.SaveTheme(m.session.Theme)
	}
	return m
}

// copyReply copies the selected message, or the latest model reply, to the
// clipboard and reports the result in the status line.
func (m Model) copyReply() Model {
	text, ok := app.CopyText(m.session, m.store.Snapshot(), m.selectedMsg)
	if !ok {
		m.notice = "nothing to copy"
		return m
	}
	if err := m.copyText(text); err != nil {
		m.logger.Warn("clipboard write failed", zap.Error(err))
		m.notice = "copy failed: " + err.Error()
		return m
	}
	m.notice = "copied to clipboard"
	return m
}

// applyConfig takes the live-reloadable UI settings from a new config.
func (m Model) applyConfig(cfg *config.Config) Model {
	if cfg == nil {
		return m
	}
	if cfg.UI.SidebarWidth > 0 {
		m.sidebarWidth = cfg.UI.SidebarWidth
	}
	m.markdown = cfg.UI.Markdown
	m.notice = "config reloaded"
	m.logger.Info("config reloaded",
		zap.Int("sidebar_width", m.sidebarWidth),
		zap.Bool("markdown", cfg.UI.Markdown),
	)
	return m
}

// focusPane moves key focus and returns the cursor blink command.
func (m *Model) focusPane(f focus) tea.Cmd {
	m.focus = f
	m.composer.Blur()
	m.system.Blur()
	switch f {
	case focusComposer:
		return m.composer.Focus()
	case focusSystem:
		return m.system.Focus()
	}
	return nil
}

func (m *Model) closeOverlay() {
	m.overlay = overlayNone
	m.targetID = ""
	m.rename.Blur()
	m.attachInput.Blur()
	m.rename.Reset()
	m.attachInput.Reset()
}

// =============================================================================
// HELPERS
// =============================================================================

func lastUserMessage(conv model.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == model.RoleUser {
			return conv.Messages[i].ID
		}
	}
	return ""
}

// sameMapping reports whether a handler returned its input unchanged.
func sameMapping(a, b store.Conversations) bool {
	if len(a) != len(b) {
		return false
	}
	for id, conv := range a {
		other, ok := b[id]
		if !ok || !other.UpdatedAt.Equal(conv.UpdatedAt) || other.Title != conv.Title ||
			len(other.Messages) != len(conv.Messages) || other.SystemInstruction != conv.SystemInstruction {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
