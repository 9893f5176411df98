// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chatomatic TUI.
//
// This file bridges the conversation store's synchronous subscription
// into the Bubble Tea loop. During streaming the store can notify
// hundreds of times per second; the feed keeps only the newest snapshot
// and wakes the loop once per drained burst, so rendering stays smooth
// without ever showing a stale conversation.
package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// CONVERSATION FEED
// =============================================================================

// ConvFeed coalesces store snapshots for the Bubble Tea loop.
//
// Thread-safety: Push is called from the store's notification path
// (streaming goroutine), Await from the Bubble Tea runtime.
type ConvFeed struct {
	mu     sync.Mutex
	latest *model.Conversation
	signal chan struct{}
}

// NewConvFeed creates an empty feed.
func NewConvFeed() *ConvFeed {
	return &ConvFeed{
		signal: make(chan struct{}, 1),
	}
}

// Push records a snapshot as the newest state, replacing any unseen
// predecessor.
func (f *ConvFeed) Push(conv model.Conversation) {
	f.mu.Lock()
	f.latest = &conv
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Await returns a command that blocks until a snapshot is available and
// delivers it as a ConvMsg. The caller re-issues Await after handling
// each message.
func (f *ConvFeed) Await() tea.Cmd {
	return func() tea.Msg {
		for {
			<-f.signal

			f.mu.Lock()
			conv := f.latest
			f.latest = nil
			f.mu.Unlock()

			// A nil snapshot means the signal raced an earlier drain;
			// keep waiting for real content.
			if conv != nil {
				return ConvMsg{Conversation: *conv}
			}
		}
	}
}
