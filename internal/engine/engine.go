// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/chatomatic/internal/cloud"
	"github.com/jeranaias/chatomatic/internal/imaging"
	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// TURN DISPATCHER
// =============================================================================

// FallbackPrompt is the text part used when a turn carries attachments but
// no typed caption, so every user turn states an intent.
const FallbackPrompt = "Describe the attached image(s)."

// ErrBusy is returned when a turn is submitted while a prior turn's stream
// is still unresolved.
var ErrBusy = errors.New("a turn is already in flight")

// Streamer delivers a message history to the remote endpoint and streams
// back fragments. Satisfied by *cloud.Client.
type Streamer interface {
	Stream(ctx context.Context, messages []cloud.ChatMessage, callback cloud.FragmentCallback) error
}

// Engine drives the turn lifecycle: it stages attachments, dispatches at
// most one streaming turn at a time, folds response fragments into the
// store, and resets everything on demand.
type Engine struct {
	store    *model.Store
	streamer Streamer
	pending  *Pending
	prompts  *PromptSet

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates an engine around the given store and streamer.
func New(store *model.Store, streamer Streamer) *Engine {
	return &Engine{
		store:    store,
		streamer: streamer,
		pending:  NewPending(),
		prompts:  DefaultPrompts(),
	}
}

// Store returns the conversation store the engine mutates.
func (e *Engine) Store() *model.Store {
	return e.store
}

// Pending returns the staged attachment set.
func (e *Engine) Pending() *Pending {
	return e.pending
}

// Prompts returns the quick-prompt set.
func (e *Engine) Prompts() *PromptSet {
	return e.prompts
}

// Busy reports whether a turn is currently in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Submit dispatches one user turn: the staged attachments followed by one
// text part. Empty text with no staged attachments is a silent no-op.
// Returns ErrBusy while a prior turn is unresolved; a rejected submit
// leaves both the store and the staged attachments untouched.
func (e *Engine) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" && e.pending.Count() == 0 {
		return nil
	}

	return e.submitTurn(ctx, text, true)
}

// submitTurn builds and dispatches the turn. consumePending selects
// whether the staged attachment set travels with it.
func (e *Engine) submitTurn(ctx context.Context, text string, consumePending bool) error {
	// The generation is captured inside the same critical section that
	// claims the in-flight slot, before anything is appended. Every later
	// store mutation for this turn is guarded on it, so a reset landing at
	// any point after the claim drops the rest of the turn atomically.
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrBusy
	}
	e.running = true
	streamCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	generation := e.store.Generation()
	e.mu.Unlock()

	var attachments []imaging.Attachment
	if consumePending {
		attachments = e.pending.take()
	}

	parts := make([]model.Part, 0, len(attachments)+1)
	for _, a := range attachments {
		parts = append(parts, model.FilePart{MediaType: a.MediaType, URI: a.URI})
	}
	if text == "" {
		text = FallbackPrompt
	}
	parts = append(parts, model.TextPart{Content: text})

	if err := e.store.AppendIfGeneration(generation, model.NewUserMessage(parts)); err != nil {
		e.finish()
		if errors.Is(err, model.ErrStaleGeneration) {
			// A concurrent reset won; the turn is dropped, not an error.
			return nil
		}
		return err
	}
	history := cloud.FromConversation(e.store.Snapshot())

	if e.store.SetStatusIfGeneration(generation, model.StatusSubmitted) != nil {
		e.finish()
		return nil
	}

	go e.reconcile(streamCtx, generation, history)
	return nil
}

// QuickPrompt forwards a canned prompt as a text-only turn. Staged
// attachments are left alone. Unknown names return ErrUnknownPrompt;
// an in-flight turn returns ErrBusy.
func (e *Engine) QuickPrompt(ctx context.Context, name string) error {
	text, err := e.prompts.Resolve(name)
	if err != nil {
		return err
	}
	return e.submitTurn(ctx, text, false)
}

// =============================================================================
// RESET CONTROLLER
// =============================================================================

// ResetAll empties the conversation, clears staged attachments, and stops
// any in-flight stream from applying further fragments. Permitted in any
// status.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.pending.Clear()
	e.store.Reset()
}

// finish releases the in-flight slot once a turn's stream has resolved.
func (e *Engine) finish() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.running = false
	e.mu.Unlock()
}
