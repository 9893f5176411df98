// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatomatic/internal/model"
	"github.com/jeranaias/chatomatic/internal/util"
)

const (
	headerHeight = 1
	statusHeight = 1

	// streamCursor marks the open end of an in-progress assistant reply.
	streamCursor = "▌"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the full interface.
func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderAttachments(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.renderStatusBar(),
	}

	var nonEmpty []string
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("chatomatic")
	modelName := m.theme.HeaderModel.Render(util.TruncateWidth(m.opts.ModelName, m.width/2))
	gap := m.width - util.StringWidth("chatomatic") - util.StringWidth(m.opts.ModelName) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + modelName)
}

// renderAttachments shows the staged image chips, if any.
func (m *Model) renderAttachments() string {
	pending := m.engine.Pending().List()
	if len(pending) == 0 {
		return ""
	}

	chips := make([]string, len(pending))
	for i, a := range pending {
		chips[i] = m.theme.AttachmentChip.Render(
			fmt.Sprintf("%d: image %dx%d", i+1, a.Width, a.Height))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func (m *Model) renderStatusBar() string {
	var left string
	switch {
	case m.noticeErr && m.notice != "":
		left = m.theme.StatusError.Render(m.notice)
	case m.notice != "":
		left = m.theme.StatusIdle.Render(m.notice)
	case m.conv.Status == model.StatusError:
		left = m.theme.StatusError.Render("error: " + m.conv.Failure)
	case m.conv.Status.InFlight():
		left = m.theme.StatusBusy.Render(m.spinner.View() + "thinking")
	default:
		left = m.theme.StatusIdle.Render("ready")
	}

	var help []string
	for _, b := range m.keys.ShortHelp() {
		help = append(help,
			m.theme.ShortcutKey.Render(b.Help().Key)+" "+
				m.theme.ShortcutDesc.Render(b.Help().Desc))
	}
	right := strings.Join(help, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(left, m.width-2))
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// CONVERSATION RENDERING
// =============================================================================

// renderConversation renders every message of the current snapshot.
func (m *Model) renderConversation() string {
	if len(m.conv.Messages) == 0 {
		return m.theme.InputPlaceholder.Render("No messages yet. Say hello, or /attach an image.")
	}

	bubbleWidth := m.width - 4
	if bubbleWidth < 10 {
		bubbleWidth = 10
	}

	blocks := make([]string, 0, len(m.conv.Messages))
	for i, msg := range m.conv.Messages {
		open := m.conv.Status == model.StatusStreaming &&
			i == len(m.conv.Messages)-1 &&
			msg.Role == model.RoleAssistant
		blocks = append(blocks, m.renderMessage(msg, bubbleWidth, open))
	}
	return strings.Join(blocks, "\n")
}

// renderMessage renders one message bubble. Open assistant messages get
// a streaming cursor and skip markdown rendering; parts of unknown
// variants are ignored.
func (m *Model) renderMessage(msg *model.Message, width int, open bool) string {
	var body strings.Builder

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case model.TextPart:
			text := p.Content
			if !open && msg.Role == model.RoleAssistant && m.renderer != nil {
				if rendered, err := m.renderer.Render(text); err == nil {
					text = strings.TrimRight(rendered, "\n")
				}
			}
			body.WriteString(text)
		case model.FilePart:
			if body.Len() > 0 {
				body.WriteString("\n")
			}
			body.WriteString(m.theme.ImageTag.Render("[" + p.MediaType + " attachment]"))
		}
	}
	if open {
		body.WriteString(streamCursor)
	}

	style := m.theme.AssistantBubble
	label := "assistant"
	if msg.Role == model.RoleUser {
		style = m.theme.UserBubble
		label = "you"
	}

	header := m.theme.Timestamp.Render(label + " " + msg.Timestamp.Format("15:04"))
	return header + "\n" + style.Width(width).Render(body.String())
}
