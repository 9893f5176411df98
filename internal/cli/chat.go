// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive plain-mode chat REPL.
//
// Handles the --plain chat mode: a line-oriented REPL for conversing with
// the model without the full-screen TUI.
//
// Interactive commands (during chat):
//   /help, /h           Show available commands
//   /attach FILE...     Stage image attachments for the next message
//   /detach N           Remove staged attachment N
//   /prompt NAME        Send a quick prompt (attachments stay staged)
//   /prompts            List quick prompt names
//   /history            Show the conversation so far
//   /status, /s         Show session statistics
//   /reset, /c          Clear the conversation and staged attachments
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/chatomatic/internal/config"
	"github.com/jeranaias/chatomatic/internal/engine"
	"github.com/jeranaias/chatomatic/internal/model"
	"github.com/jeranaias/chatomatic/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Indigo).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// Session summary header
	summaryHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.Teal).
				Bold(true)
)

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive plain-mode session.
type ChatSession struct {
	Engine    *engine.Engine
	Config    *config.Config
	ModelName string
	Quiet     bool

	StartTime time.Time
	Turns     int

	// Input history handler
	InputCLI *ChatCLI

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChatSession creates a new plain-mode session around an engine.
func NewChatSession(cfg *config.Config, eng *engine.Engine, quiet bool) *ChatSession {
	modelName := cfg.Endpoint.Model
	if modelName == "" {
		modelName = "default"
	}

	return &ChatSession{
		Engine:    eng,
		Config:    cfg,
		ModelName: modelName,
		Quiet:     quiet,
		StartTime: time.Now(),
		InputCLI:  NewChatCLI(),
	}
}

func (s *ChatSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// CancelCurrent cancels the in-flight turn, if any.
func (s *ChatSession) CancelCurrent() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// RunChat runs the interactive plain-mode REPL until the user exits.
func RunChat(cfg *config.Config, eng *engine.Engine, quiet bool) error {
	// Colors follow the terminal: piped output and NO_COLOR render plain.
	lipgloss.SetColorProfile(GetColorProfile())

	// Without a terminal on stdin there is nobody reading banners.
	quiet = quiet || !IsTTY()

	session := NewChatSession(cfg, eng, quiet)

	if !session.Quiet {
		printWelcome(session)
	}

	// Save input history on exit
	defer session.InputCLI.Close()

	// First Ctrl+C cancels the current generation; at the prompt liner
	// surfaces it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if session.CancelCurrent() {
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[cancelled]"))
			}
		}
	}()

	for {
		if n := session.Engine.Pending().Count(); n > 0 && !session.Quiet {
			fmt.Println(infoStyle.Render(fmt.Sprintf("[%d image(s) staged]", n)))
		}

		input, err := session.InputCLI.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C (ErrPromptAborted) or Ctrl+D both exit gracefully
			if err != liner.ErrPromptAborted {
				fmt.Println()
			}
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			// Bare enter still sends when images are staged
			if session.Engine.Pending().Count() == 0 {
				continue
			}
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[error]"), err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := session.sendMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[error]"), err)
		}
	}
}

// =============================================================================
// TURN PROCESSING
// =============================================================================

// sendMessage submits a user message and streams the reply to stdout.
func (s *ChatSession) sendMessage(input string) error {
	return s.runTurn(func(ctx context.Context) error {
		return s.Engine.Submit(ctx, input)
	})
}

// sendQuickPrompt invokes a named quick prompt as a text-only turn.
func (s *ChatSession) sendQuickPrompt(name string) error {
	return s.runTurn(func(ctx context.Context) error {
		return s.Engine.QuickPrompt(ctx, name)
	})
}

// runTurn submits a turn and blocks until the conversation settles.
//
// In raw mode fragments are echoed as they arrive. In markdown mode the
// reply is collected and rendered once sealed, since partial markdown
// cannot be re-rendered in place on a line terminal.
func (s *ChatSession) runTurn(submit func(context.Context) error) error {
	useMarkdown := IsStdoutTTY() && s.Config.UI.Markdown

	ctx, cancel := context.WithCancel(context.Background())
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	done := make(chan struct{})
	var (
		printMu sync.Mutex
		printed int
		started bool
		once    sync.Once
	)

	store := s.Engine.Store()
	unsub := store.Subscribe(func(conv model.Conversation) {
		printMu.Lock()
		defer printMu.Unlock()

		if !useMarkdown {
			if text, ok := openReplyText(conv); ok && len(text) > printed {
				fmt.Print(text[printed:])
				printed = len(text)
			}
		}

		// The user message lands before the status flips, so only treat a
		// non-in-flight status as terminal after the turn has started.
		if conv.Status.InFlight() {
			started = true
		} else if started {
			once.Do(func() { close(done) })
		}
	})
	defer unsub()

	fmt.Println()
	if err := submit(ctx); err != nil {
		return err
	}
	<-done

	s.Turns++
	conv := store.Snapshot()

	if conv.Status == model.StatusError {
		if !useMarkdown && printed > 0 {
			fmt.Println()
		}
		return fmt.Errorf("stream failed: %s", conv.Failure)
	}

	text, _ := sealedReplyText(conv)
	switch {
	case text == "":
		fmt.Println(infoStyle.Render("(no reply)"))
	case useMarkdown:
		displayResponse(text)
	default:
		fmt.Println()
	}
	fmt.Println()
	return nil
}

// openReplyText returns the text of the reply currently being streamed.
func openReplyText(conv model.Conversation) (string, bool) {
	if conv.Status != model.StatusStreaming || len(conv.Messages) == 0 {
		return "", false
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != model.RoleAssistant {
		return "", false
	}
	return model.TextContent(last.Parts), true
}

// sealedReplyText returns the text of the final assistant message, if the
// turn produced one.
func sealedReplyText(conv model.Conversation) (string, bool) {
	if len(conv.Messages) == 0 {
		return "", false
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != model.RoleAssistant {
		return "", false
	}
	return model.TextContent(last.Parts), true
}

// =============================================================================
// WELCOME / SUMMARY
// =============================================================================

func printWelcome(s *ChatSession) {
	fmt.Println(welcomeStyle.Render("chatomatic"))
	fmt.Println(infoStyle.Render("model: " + s.ModelName))
	fmt.Println(infoStyle.Render("type /help for commands, /quit to exit"))
	fmt.Println()
}

func printExitSummary(s *ChatSession) {
	if s.Quiet {
		return
	}

	conv := s.Engine.Store().Snapshot()
	duration := time.Since(s.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("session summary"))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  turns:    %d", s.Turns)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  messages: %d", len(conv.Messages))))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  duration: %s", duration)))
}
