// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
package chat

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatomatic/internal/engine"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command is one slash command available from the input line.
type Command struct {
	Name        string
	Usage       string
	Description string
	Run         func(m *Model, args []string) tea.Cmd
}

// Commands returns the command set in display order.
func Commands() []Command {
	return []Command{
		{
			Name:        "attach",
			Usage:       "/attach <file> [file...]",
			Description: "stage image files for the next turn",
			Run:         runAttach,
		},
		{
			Name:        "detach",
			Usage:       "/detach <n>",
			Description: "drop staged attachment number n",
			Run:         runDetach,
		},
		{
			Name:        "prompt",
			Usage:       "/prompt <name>",
			Description: "send a quick prompt",
			Run:         runPrompt,
		},
		{
			Name:        "prompts",
			Usage:       "/prompts",
			Description: "list quick prompt names",
			Run:         runPrompts,
		},
		{
			Name:        "reset",
			Usage:       "/reset",
			Description: "clear the conversation and staged attachments",
			Run:         runReset,
		},
		{
			Name:        "help",
			Usage:       "/help",
			Description: "show available commands",
			Run:         runHelp,
		},
		{
			Name:        "quit",
			Usage:       "/quit",
			Description: "exit chatomatic",
			Run:         runQuit,
		},
	}
}

// parseCommand splits a slash-command line into name and arguments.
// Returns ok=false for ordinary chat input.
func parseCommand(input string) (name string, args []string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) < 2 {
		return "", nil, false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// findCommand resolves a command by name.
func findCommand(name string) (Command, bool) {
	for _, cmd := range Commands() {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

func notice(format string, a ...any) tea.Cmd {
	text := fmt.Sprintf(format, a...)
	return func() tea.Msg { return NoticeMsg{Text: text} }
}

func noticeErr(format string, a ...any) tea.Cmd {
	text := fmt.Sprintf(format, a...)
	return func() tea.Msg { return NoticeMsg{Text: text, IsErr: true} }
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

func runAttach(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		return noticeErr("usage: /attach <file> [file...]")
	}

	var (
		sources []io.Reader
		files   []*os.File
	)
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return noticeErr("cannot open %s: %v", path, err)
		}
		files = append(files, f)
		sources = append(sources, f)
	}

	report := m.engine.Pending().AddImages(sources)
	for _, f := range files {
		f.Close()
	}

	parts := []string{fmt.Sprintf("%d attached", len(report.Added))}
	if n := len(report.Rejected); n > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable", n))
	}
	if report.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("%d over the %d-image cap", report.Dropped, engine.MaxAttachments))
	}
	if len(report.Rejected) > 0 || report.Dropped > 0 {
		return noticeErr("%s", strings.Join(parts, ", "))
	}
	return notice("%s", strings.Join(parts, ", "))
}

func runDetach(m *Model, args []string) tea.Cmd {
	if len(args) != 1 {
		return noticeErr("usage: /detach <n>")
	}
	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > m.engine.Pending().Count() {
		return noticeErr("no staged attachment %q", args[0])
	}
	m.engine.Pending().Remove(n - 1)
	return notice("attachment %d removed", n)
}

func runPrompt(m *Model, args []string) tea.Cmd {
	if len(args) != 1 {
		return noticeErr("usage: /prompt <name>")
	}
	if err := m.engine.QuickPrompt(m.ctx, args[0]); err != nil {
		return noticeErr("%v", err)
	}
	return nil
}

func runPrompts(m *Model, _ []string) tea.Cmd {
	names := m.engine.Prompts().Names()
	if len(names) == 0 {
		return notice("no quick prompts configured")
	}
	return notice("quick prompts: %s", strings.Join(names, ", "))
}

func runReset(m *Model, _ []string) tea.Cmd {
	m.engine.ResetAll()
	return notice("conversation cleared")
}

func runHelp(m *Model, _ []string) tea.Cmd {
	var b strings.Builder
	for _, cmd := range Commands() {
		fmt.Fprintf(&b, "%s - %s; ", cmd.Usage, cmd.Description)
	}
	return notice("%s", strings.TrimSuffix(b.String(), "; "))
}

func runQuit(m *Model, _ []string) tea.Cmd {
	return func() tea.Msg { return QuitMsg{} }
}
