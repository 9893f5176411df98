// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Readline-style input with persistent history.

package cli

import (
	"os"
	"path/filepath"

	"github.com/peterh/liner"

	"github.com/jeranaias/chatomatic/internal/config"
)

// historyFileName is the input history file inside the config directory.
const historyFileName = "chat_history"

// ChatCLI wraps liner to provide readline-like input with history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new input handler with history loaded from disk.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyFile = filepath.Join(dir, historyFileName)
		c.loadHistory()
	}
	return c
}

func (c *ChatCLI) loadHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.ReadHistory(f)
}

// ReadInput reads a line of input with history navigation.
// Non-empty input is appended to the in-memory history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if input != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists the input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}
