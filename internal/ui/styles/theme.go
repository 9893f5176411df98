// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chatomatic
// TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application. It detects
// the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	StatusBar    lipgloss.Style
	StatusIdle   lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusError  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	Timestamp       lipgloss.Style
	ImageTag        lipgloss.Style

	// ==========================================================================
	// INPUT AREA
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style

	// ==========================================================================
	// ATTACHMENTS AND ERRORS
	// ==========================================================================

	AttachmentChip lipgloss.Style
	ErrorBox       lipgloss.Style
	ErrorTitle     lipgloss.Style

	Spinner lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: profile,
	}
	t.buildStyles()
	return t
}

// SetSize updates the layout dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

func (t *Theme) buildStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Teal).
		Bold(true)
	t.HeaderModel = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusIdle = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Amber)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Teal)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Teal).
		Padding(0, 1)
	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Indigo).
		Padding(0, 1)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.ImageTag = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(Overlay)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	t.InputPlaceholder = lipgloss.NewStyle().Foreground(TextMuted)

	t.AttachmentChip = lipgloss.NewStyle().
		Foreground(Amber).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(0, 1)
	t.ErrorBox = lipgloss.NewStyle().
		Foreground(Rose).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Rose).
		Padding(0, 1)
	t.ErrorTitle = lipgloss.NewStyle().Foreground(Rose).Bold(true)

	t.Spinner = lipgloss.NewStyle().Foreground(Indigo)
}
