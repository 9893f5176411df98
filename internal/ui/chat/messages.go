// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
package chat

import (
	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// ConvMsg delivers a fresh conversation snapshot from the store feed.
type ConvMsg struct {
	Conversation model.Conversation
}

// =============================================================================
// COMMAND MESSAGES
// =============================================================================

// NoticeMsg shows a transient line in the status area, for command
// feedback like attachment results.
type NoticeMsg struct {
	Text  string
	IsErr bool
}

// QuitMsg asks the program to terminate.
type QuitMsg struct{}
