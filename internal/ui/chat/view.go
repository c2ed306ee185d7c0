// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/app"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

// layout holds the computed pane sizes for one frame.
type layout struct {
	sidebar  int // outer width, zero when hidden
	main     int
	body     int // height below the header, above the footer
	viewport int
}

func (m Model) computeLayout() layout {
	var l layout
	if m.theme.GetLayoutMode() != styles.LayoutNarrow {
		l.sidebar = clamp(m.sidebarWidth, 12, m.width/2)
	}
	l.main = max(m.width-l.sidebar, 20)
	l.body = max(m.height-2, 3)

	used := 1 // status line
	if banner := m.bannerView(l.main); banner != "" {
		used += lipgloss.Height(banner)
	}
	if m.showSystemPanel() {
		used += 3
	}
	if m.pendingPath != "" || m.attaching {
		used++
	}
	if m.session.EditingID != "" {
		used += m.editor.Height() + 2
	} else {
		used += m.composer.Height() + 2
	}
	l.viewport = max(l.body-used, 1)
	return l
}

// refresh resizes components and rebuilds the transcript.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	l := m.computeLayout()

	inputWidth := max(l.main-m.theme.InputContainer.GetHorizontalFrameSize(), 10)
	m.composer.SetWidth(inputWidth)
	m.editor.SetWidth(inputWidth)
	m.system.Width = max(inputWidth-len("System: ")-2, 10)

	m.viewport.Width = l.main
	m.viewport.Height = l.viewport

	m.renderer.configure(m.theme.GlamourStyle(), max(l.main-4, 20), m.markdown)

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.transcript())
	if atBottom || m.follow || m.session.Busy() {
		m.viewport.GotoBottom()
		m.follow = false
	}
}

// transcript renders the visible messages.
func (m Model) transcript() string {
	msgs := app.Visible(m.session, m.store.Snapshot())
	views := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView{
			msg:      msg,
			selected: msg.ID == m.selectedMsg,
			editing:  msg.ID == m.session.EditingID,
		})
	}
	return m.renderer.renderTranscript(m.theme, views)
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat interface.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	l := m.computeLayout()

	var body string
	switch m.overlay {
	case overlayNone:
		main := m.mainView(l)
		if l.sidebar > 0 {
			body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(l), main)
		} else {
			body = main
		}
	default:
		body = lipgloss.Place(m.width, l.body, lipgloss.Center, lipgloss.Center, m.overlayView())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		m.footerView(),
	)
}

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("gemchat")
	info := m.modelName
	if m.provider != "" {
		info = m.provider + "/" + m.modelName
	}
	right := m.theme.HeaderModel.Render(fmt.Sprintf("%s  %s", info, m.session.Theme))

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right) - m.theme.Header.GetHorizontalFrameSize()
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + right)
}

func (m Model) sidebarView(l layout) string {
	style := m.theme.Sidebar
	if m.focus == focusSidebar && m.overlay == overlayNone {
		style = m.theme.SidebarFocused
	}
	inner := max(l.sidebar-style.GetHorizontalFrameSize(), 4)
	height := max(l.body-style.GetVerticalFrameSize(), 1)

	lines := []string{m.theme.SidebarTitle.Render("Conversations")}
	convs := m.store.Snapshot().Sorted()
	if len(convs) == 0 {
		lines = append(lines, m.theme.SessionMeta.Render("No conversations yet"))
	}

	// Each entry takes two lines; scroll to keep the cursor visible.
	visible := max((height-2)/2, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	for i := start; i < len(convs) && i < start+visible; i++ {
		conv := convs[i]
		title := util.TruncateWidth(conv.DisplayTitle(), inner)
		item := m.theme.SessionItem
		if conv.ID == m.session.ActiveID {
			item = m.theme.SessionItemActive
		}
		if i == m.cursor && m.focus == focusSidebar {
			item = item.Inherit(m.theme.SessionItemSelected)
		}
		meta := util.TruncateWidth(fmt.Sprintf("%d msgs  %s", len(conv.Messages), conv.UpdatedAt.Format("Jan 2 15:04")), inner)
		lines = append(lines, item.Width(inner).Render(title), m.theme.SessionMeta.Render(meta))
	}

	return style.Width(inner).Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) mainView(l layout) string {
	parts := make([]string, 0, 6)
	if banner := m.bannerView(l.main); banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, m.viewport.View(), m.statusView())
	if m.showSystemPanel() {
		parts = append(parts, m.systemView(l.main))
	}
	if chip := m.attachmentView(); chip != "" {
		parts = append(parts, chip)
	}
	parts = append(parts, m.inputView(l.main))
	return lipgloss.NewStyle().Width(l.main).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) bannerView(width int) string {
	if m.session.Error == "" {
		return ""
	}
	return m.theme.ErrorBanner.Width(width).Render(m.session.Error)
}

func (m Model) statusView() string {
	switch {
	case m.session.ShowTyping():
		return m.spinner.View() + " " + m.theme.ThinkingText.Render(model.RoleModel.DisplayName()+" is typing...")
	case m.attaching:
		return m.theme.ThinkingText.Render("Reading attachment...")
	case m.session.Streaming:
		return m.spinner.View() + " " + m.theme.ThinkingText.Render("Streaming...")
	case m.notice != "":
		return m.theme.Muted.Render(m.notice)
	}
	return ""
}

// showSystemPanel reports whether the system instruction line is drawn.
func (m Model) showSystemPanel() bool {
	if m.focus == focusSystem {
		return true
	}
	conv, ok := app.Active(m.session, m.store.Snapshot())
	return ok && conv.SystemInstruction != ""
}

func (m Model) systemView(width int) string {
	label := m.theme.SystemPanelLabel.Render("System: ")
	inner := max(width-m.theme.SystemPanel.GetHorizontalFrameSize(), 10)
	var value string
	if m.focus == focusSystem {
		value = m.system.View()
	} else {
		conv, _ := app.Active(m.session, m.store.Snapshot())
		value = util.TruncateWidth(util.OneLine(conv.SystemInstruction), inner-lipgloss.Width(label))
	}
	return m.theme.SystemPanel.Width(inner).Render(label + value)
}

func (m Model) attachmentView() string {
	if m.pendingPath == "" {
		return ""
	}
	return m.theme.AttachmentChip.Render("image: " + filepath.Base(m.pendingPath))
}

func (m Model) inputView(width int) string {
	inner := max(width-m.theme.InputContainer.GetHorizontalFrameSize(), 10)
	if m.session.EditingID != "" {
		return m.theme.InputContainer.BorderForeground(styles.Amber).Width(inner).Render(m.editor.View())
	}
	style := m.theme.InputContainer
	if m.focus != focusComposer || !m.canCompose() {
		style = m.theme.InputContainerBlurred
	}
	return style.Width(inner).Render(m.composer.View())
}

func (m Model) footerView() string {
	if m.overlay != overlayNone {
		return m.theme.StatusBar.Render("")
	}
	switch {
	case m.session.EditingID != "":
		return m.help.ShortHelpView(m.keys.editHelp())
	case m.focus == focusSidebar:
		return m.help.ShortHelpView(m.keys.sidebarHelp())
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m Model) overlayView() string {
	width := min(max(m.width/2, 40), m.width-4)
	var title, content string
	switch m.overlay {
	case overlayRename:
		title = "Rename conversation"
		content = m.rename.View() + "\n\n" + m.theme.Muted.Render("Enter to save, Esc to cancel")
	case overlayDelete:
		conv, _ := m.store.Snapshot().Get(m.targetID)
		title = "Delete conversation"
		content = fmt.Sprintf("Delete %q? This cannot be undone.", util.TruncateRunes(conv.DisplayTitle(), 40)) +
			"\n" + m.theme.Muted.Render(conv.Preview(max(width-8, 10))) +
			"\n\n" + m.theme.Muted.Render("y to delete, n to keep")
	case overlayAttach:
		title = "Attach image"
		content = m.attachInput.View() + "\n\n" + m.theme.Muted.Render("Enter an empty path to remove the attachment")
	case overlayHelp:
		title = "Keyboard shortcuts"
		content = m.help.FullHelpView(m.keys.FullHelp())
	}
	return m.theme.Dialog.Width(width).Render(m.theme.DialogTitle.Render(title) + "\n" + content)
}
