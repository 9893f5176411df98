// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing for the chatomatic binary.
//
// Handles both flag formats consistently:
//   - Long flags: --flag value or --flag=value
//   - Boolean flags: --flag (no value needed)
//   - An optional leading subcommand (chat, serve, version, help)

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies which mode the binary should run in.
type Command int

const (
	// CmdTUI runs the full-screen terminal interface (the default).
	CmdTUI Command = iota
	// CmdChat runs the plain line-oriented REPL.
	CmdChat
	// CmdServe runs the streaming relay server.
	CmdServe
	// CmdVersion prints version information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
)

// Args holds the parsed command-line options.
type Args struct {
	// Model overrides the configured model name.
	Model string
	// BaseURL overrides the configured endpoint base URL.
	BaseURL string
	// Wire overrides the configured wire form (sse or raw).
	Wire string
	// ConfigPath loads configuration from an explicit file.
	ConfigPath string
	// Listen overrides the relay listen address (serve mode).
	Listen string

	// Plain forces the line-oriented REPL instead of the TUI.
	Plain bool
	// Quiet suppresses banners and summaries.
	Quiet bool
	// NoMarkdown disables markdown rendering of replies.
	NoMarkdown bool
}

// Parse parses os.Args into a command and its options.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses raw arguments. Split out from Parse for testability.
func ParseArgs(raw []string) (Command, Args) {
	cmd := CmdTUI
	var args Args

	// Optional leading subcommand
	if len(raw) > 0 && !strings.HasPrefix(raw[0], "-") {
		switch strings.ToLower(raw[0]) {
		case "chat":
			cmd = CmdChat
		case "serve":
			cmd = CmdServe
		case "version":
			cmd = CmdVersion
		case "help":
			cmd = CmdHelp
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", raw[0])
			cmd = CmdHelp
		}
		raw = raw[1:]
	}

	i := 0
	for i < len(raw) {
		arg := raw[i]
		name := strings.TrimLeft(arg, "-")
		value := ""
		hasValue := false

		// --flag=value form
		if eq := strings.Index(name, "="); eq >= 0 {
			name, value = name[:eq], name[eq+1:]
			hasValue = true
		}

		// --flag value form for flags that take one
		takesValue := func() string {
			if hasValue {
				return value
			}
			if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
				i++
				return raw[i]
			}
			return ""
		}

		switch strings.ToLower(name) {
		case "model", "m":
			args.Model = takesValue()
		case "base-url", "endpoint":
			args.BaseURL = takesValue()
		case "wire":
			args.Wire = takesValue()
		case "config":
			args.ConfigPath = takesValue()
		case "listen", "l":
			args.Listen = takesValue()
		case "plain", "p":
			args.Plain = true
		case "quiet", "q":
			args.Quiet = true
		case "no-markdown":
			args.NoMarkdown = true
		case "version", "v":
			cmd = CmdVersion
		case "help", "h":
			cmd = CmdHelp
		}
		i++
	}

	return cmd, args
}

// =============================================================================
// USAGE / VERSION
// =============================================================================

// PrintUsage writes command usage to stdout.
func PrintUsage() {
	fmt.Print(`chatomatic - streaming chat for terminal people

Usage:
  chatomatic [flags]            Start the full-screen TUI
  chatomatic chat [flags]       Start the plain line-oriented REPL
  chatomatic serve [flags]      Run the streaming relay server
  chatomatic version            Print version information
  chatomatic help               Show this help

Flags:
  -m, --model NAME     Model to use (overrides config)
      --base-url URL   Endpoint base URL (overrides config)
      --wire FORM      Wire form: sse or raw (overrides config)
      --config PATH    Load configuration from an explicit file
  -l, --listen ADDR    Relay listen address (serve mode)
  -p, --plain          Use the plain REPL instead of the TUI
  -q, --quiet          Suppress banners and summaries
      --no-markdown    Disable markdown rendering of replies

Environment:
  CHATOMATIC_API_KEY / OPENROUTER_API_KEY   Endpoint API key
  CHATOMATIC_BASE_URL, CHATOMATIC_MODEL     Endpoint overrides
`)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("chatomatic %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
