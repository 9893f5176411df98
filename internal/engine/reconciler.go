// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
package engine

import (
	"context"
	"errors"

	"github.com/jeranaias/chatomatic/internal/cloud"
	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// STREAM RECONCILER
// =============================================================================

// reconcile runs one turn's stream to resolution, folding fragments into
// the store in receipt order.
//
// The empty assistant message is appended on the first non-empty fragment,
// not at submit time, so the history shows an in-progress assistant turn
// only once the endpoint has started answering. Every mutation goes
// through the store's generation-guarded variants, which compare the
// turn's captured generation under the store lock: a reset landing at any
// point mid-stream makes the remaining mutations report stale, and none
// of them can touch the fresh conversation.
//
// Errors leave partially reconciled content exactly as far as it got.
func (e *Engine) reconcile(ctx context.Context, generation uint64, history []cloud.ChatMessage) {
	defer e.finish()

	opened := false
	stale := false

	// markStale stops both ends of the pipe: the callback ignores the
	// remaining fragments and the transport is cancelled.
	markStale := func() {
		stale = true
		e.mu.Lock()
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()
	}

	err := e.streamer.Stream(ctx, history, func(f cloud.Fragment) {
		if stale {
			return
		}

		switch f.Kind {
		case cloud.FragmentTextDelta:
			if f.Text == "" {
				return
			}
			if !opened {
				if err := e.store.AppendIfGeneration(generation, model.NewAssistantMessage()); err != nil {
					if errors.Is(err, model.ErrStaleGeneration) {
						markStale()
					}
					return
				}
				if e.store.SetStatusIfGeneration(generation, model.StatusStreaming) != nil {
					markStale()
					return
				}
				opened = true
			}
			if errors.Is(e.store.MutateLastIfGeneration(generation, model.TextDelta(f.Text)), model.ErrStaleGeneration) {
				markStale()
			}

		case cloud.FragmentEnd:
			if e.store.SetStatusIfGeneration(generation, model.StatusIdle) != nil {
				markStale()
			}

		case cloud.FragmentError:
			// Resolved through the returned error below, so each
			// failure surfaces exactly once.
		}
	})

	if err != nil && !stale {
		_ = e.store.FailIfGeneration(generation, err)
	}
}
