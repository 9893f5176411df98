// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Slash command handling for the plain chat mode.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/chatomatic/internal/engine"
	"github.com/jeranaias/chatomatic/internal/model"
	"github.com/jeranaias/chatomatic/internal/util"
)

// parseSlashCommand splits a slash command line into its lowercase name
// and arguments. Returns ok=false when the line is not a slash command.
func parseSlashCommand(input string) (name string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// handleSlashCommand dispatches a slash command. Returns shouldContinue=false
// when the session should end.
func handleSlashCommand(input string, s *ChatSession) (bool, error) {
	name, args, ok := parseSlashCommand(input)
	if !ok {
		return true, fmt.Errorf("empty command, type /help for a list")
	}

	switch name {
	case "help", "h", "?":
		printHelp()
		return true, nil

	case "attach", "a":
		return true, attachFiles(s, args)

	case "detach":
		return true, detachFile(s, args)

	case "prompt", "p":
		if len(args) != 1 {
			return true, fmt.Errorf("usage: /prompt NAME")
		}
		if err := s.sendQuickPrompt(args[0]); err != nil {
			if errors.Is(err, engine.ErrUnknownPrompt) {
				return true, fmt.Errorf("unknown prompt %q, see /prompts", args[0])
			}
			return true, err
		}
		return true, nil

	case "prompts":
		names := s.Engine.Prompts().Names()
		if len(names) == 0 {
			fmt.Println(infoStyle.Render("no quick prompts configured"))
			return true, nil
		}
		fmt.Println(infoStyle.Render("quick prompts: " + strings.Join(names, ", ")))
		return true, nil

	case "history":
		printHistory(s)
		return true, nil

	case "status", "s":
		printStatus(s)
		return true, nil

	case "reset", "clear", "c":
		s.Engine.ResetAll()
		fmt.Println(infoStyle.Render("conversation cleared"))
		return true, nil

	case "quit", "q", "exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command /%s, type /help for a list", name)
	}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// attachFiles opens the named image files and stages them for the next
// message. Failures and capacity overflow are reported per file.
func attachFiles(s *ChatSession, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("usage: /attach FILE...")
	}

	sources := make([]io.Reader, 0, len(paths))
	files := make([]*os.File, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return fmt.Errorf("open %s: %w", path, err)
		}
		files = append(files, f)
		sources = append(sources, f)
	}

	report := s.Engine.Pending().AddImages(sources)
	for _, f := range files {
		f.Close()
	}

	if len(report.Added) > 0 {
		fmt.Println(commandStyle.Render(fmt.Sprintf("staged %d image(s), %d total",
			len(report.Added), s.Engine.Pending().Count())))
	}
	for _, err := range report.Rejected {
		fmt.Fprintf(os.Stderr, "%s %v\n", warningStyle.Render("[skipped]"), err)
	}
	if report.Dropped > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf(
			"%d image(s) dropped, at most %d can be attached", report.Dropped, engine.MaxAttachments)))
	}
	return nil
}

// detachFile removes a staged attachment by its 1-based index.
func detachFile(s *ChatSession, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /detach N")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid index %q", args[0])
	}

	pending := s.Engine.Pending()
	if n > pending.Count() {
		return fmt.Errorf("no attachment %d, %d staged", n, pending.Count())
	}
	pending.Remove(n - 1)
	fmt.Println(infoStyle.Render(fmt.Sprintf("removed attachment %d, %d remaining", n, pending.Count())))
	return nil
}

// =============================================================================
// INFO COMMANDS
// =============================================================================

func printHelp() {
	help := [][2]string{
		{"/help, /h", "show this help"},
		{"/attach FILE...", "stage image attachments for the next message"},
		{"/detach N", "remove staged attachment N"},
		{"/prompt NAME", "send a quick prompt (attachments stay staged)"},
		{"/prompts", "list quick prompt names"},
		{"/history", "show the conversation so far"},
		{"/status, /s", "show session statistics"},
		{"/reset, /c", "clear conversation and staged attachments"},
		{"/quit, /q", "exit chat"},
	}

	fmt.Println(summaryHeaderStyle.Render("commands"))
	for _, entry := range help {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(util.PadRight(entry[0], 18)),
			infoStyle.Render(entry[1]))
	}
}

func printHistory(s *ChatSession) {
	conv := s.Engine.Store().Snapshot()
	if len(conv.Messages) == 0 {
		fmt.Println(infoStyle.Render("no messages yet"))
		return
	}

	for _, msg := range conv.Messages {
		label := promptStyle.Render(msg.Role.String() + ":")
		if s.Config.UI.ShowTimestamps {
			label = infoStyle.Render(msg.Timestamp.Format("15:04:05")) + " " + label
		}
		fmt.Println(label)

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case model.TextPart:
				fmt.Println("  " + strings.ReplaceAll(p.Content, "\n", "\n  "))
			case model.FilePart:
				fmt.Println("  " + infoStyle.Render("["+p.MediaType+" attachment]"))
			}
		}
	}
}

func printStatus(s *ChatSession) {
	conv := s.Engine.Store().Snapshot()

	fmt.Println(summaryHeaderStyle.Render("session"))
	fmt.Println(infoStyle.Render("  model:       " + s.ModelName))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  turns:       %d", s.Turns)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  messages:    %d", len(conv.Messages))))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  attachments: %d staged", s.Engine.Pending().Count())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  status:      %s", conv.Status)))
	if conv.Failure != "" {
		fmt.Println(errorStyle.Render("  last error:  " + conv.Failure))
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("  uptime:      %s", time.Since(s.StartTime).Round(time.Second))))
}
