// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatomatic/internal/engine"
	"github.com/jeranaias/chatomatic/internal/model"
	"github.com/jeranaias/chatomatic/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat model.
type Options struct {
	// ModelName is shown in the header.
	ModelName string
	// Markdown renders sealed assistant messages through glamour.
	Markdown bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	ctx    context.Context
	engine *engine.Engine
	opts   Options

	theme *styles.Theme
	keys  KeyMap

	feed        *ConvFeed
	unsubscribe func()
	conv        model.Conversation

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	notice    string
	noticeErr bool

	width  int
	height int
	ready  bool
}

// New creates the chat model wired to the engine's store.
func New(ctx context.Context, eng *engine.Engine, opts Options) *Model {
	input := textarea.New()
	input.Placeholder = "Message chatomatic (/help for commands)"
	input.Prompt = "> "
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		ctx:     ctx,
		engine:  eng,
		opts:    opts,
		theme:   styles.NewTheme(),
		keys:    DefaultKeyMap(),
		feed:    NewConvFeed(),
		input:   input,
		spinner: sp,
		conv:    eng.Store().Snapshot(),
	}
	m.spinner.Style = m.theme.Spinner
	m.unsubscribe = eng.Store().Subscribe(m.feed.Push)
	return m
}

// Close detaches the model from the store.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init starts the feed listener, the spinner, and cursor blinking.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.feed.Await(),
		m.spinner.Tick,
		textarea.Blink,
	)
}

// rebuildRenderer sizes the markdown renderer to the viewport width.
func (m *Model) rebuildRenderer(width int) {
	if !m.opts.Markdown {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Fall back to plain text rendering.
		m.renderer = nil
		return
	}
	m.renderer = r
}
