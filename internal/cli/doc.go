// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the plain-terminal chat mode.
//
// This is the line-oriented alternative to the full-screen TUI: a
// readline-style REPL with input history, markdown rendering of sealed
// replies on TTYs, and the same slash commands the TUI exposes. It is
// the mode used when stdout is piped or when the user passes --plain.
package cli
