// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
//
// The Bubble Tea model observes the conversation store through a
// coalescing feed: every store mutation publishes a fresh snapshot, and
// the view re-renders from snapshots only, never from internal engine
// state. Input supports slash commands for attachments, quick prompts,
// and reset.
package chat
