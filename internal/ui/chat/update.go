// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// UPDATE LOOP
// =============================================================================

// Update handles all Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case ConvMsg:
		wasAtBottom := m.viewport.AtBottom()
		m.conv = msg.Conversation
		m.refreshViewport(wasAtBottom)
		return m, m.feed.Await()

	case NoticeMsg:
		m.notice = msg.Text
		m.noticeErr = msg.IsErr
		return m, nil

	case QuitMsg:
		m.Close()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey routes key presses between global bindings, the input box,
// and the viewport.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reset):
		m.engine.ResetAll()
		m.notice = "conversation cleared"
		m.noticeErr = false
		return m, nil

	case key.Matches(msg, m.keys.Newline):
		m.input.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m, m.submitInput()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	// Arrow keys scroll the history only while the input is empty,
	// otherwise they move the input cursor.
	if m.input.Value() == "" {
		if key.Matches(msg, m.keys.Up) || key.Matches(msg, m.keys.Down) {
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

// submitInput dispatches the input line, either a slash command or a
// chat turn.
func (m *Model) submitInput() tea.Cmd {
	text := m.input.Value()
	m.notice = ""

	if name, args, ok := parseCommand(text); ok {
		cmd, found := findCommand(name)
		if !found {
			return noticeErr("unknown command /%s (try /help)", name)
		}
		m.input.Reset()
		return cmd.Run(m, args)
	}

	if strings.TrimSpace(text) == "" && m.engine.Pending().Count() == 0 {
		return nil
	}

	if err := m.engine.Submit(m.ctx, text); err != nil {
		return noticeErr("%v", err)
	}
	m.input.Reset()
	return nil
}

// resize recomputes the layout on terminal size changes.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)
	m.rebuildRenderer(width - 4)

	inputHeight := m.input.Height() + 2
	chromeHeight := headerHeight + statusHeight + inputHeight
	viewportHeight := height - chromeHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.SetWidth(width - 2)

	m.refreshViewport(true)
}

// refreshViewport re-renders the conversation into the viewport.
func (m *Model) refreshViewport(followTail bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	if followTail {
		m.viewport.GotoBottom()
	}
}
