// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
package model

import (
	"errors"
	"sync"
)

// MaxMessages is the maximum number of messages to keep in conversation
// history. When exceeded, the oldest messages are pruned to prevent
// unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status describes the conversation's in-flight request state.
type Status string

const (
	// StatusIdle means no request is in flight.
	StatusIdle Status = "idle"

	// StatusSubmitted means a turn was sent and the first fragment has not
	// arrived yet.
	StatusSubmitted Status = "submitted"

	// StatusStreaming means response fragments are being folded into the
	// trailing assistant message.
	StatusStreaming Status = "streaming"

	// StatusError means the last turn failed. Partial assistant content is
	// preserved, never rolled back.
	StatusError Status = "error"
)

// InFlight reports whether a turn is currently unresolved. A new submission
// is rejected while this is true.
func (s Status) InFlight() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// =============================================================================
// CONVERSATION SNAPSHOT
// =============================================================================

// Conversation is an immutable snapshot of the store: the ordered message
// history, the request status, and the failure indicator for the last
// failed operation (empty when there is none).
type Conversation struct {
	Messages []*Message `json:"messages"`
	Status   Status     `json:"status"`
	Failure  string     `json:"failure,omitempty"`
}

// LastMessage returns the most recent message, or nil if empty.
func (c Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// IsEmpty reports whether the conversation has no messages.
func (c Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// STORE
// =============================================================================

// ErrInvalidState is returned when a mutation is not legal in the current
// conversation state, e.g. appending a second open assistant message while
// one is already streaming.
var ErrInvalidState = errors.New("invalid conversation state for operation")

// ErrStaleGeneration is returned by the generation-guarded mutators when
// the store has been reset since the caller captured its generation. The
// mutation is dropped without any state change or notification.
var ErrStaleGeneration = errors.New("conversation was reset, mutation dropped")

// Subscriber is called synchronously after each successful mutation with a
// fresh snapshot.
type Subscriber func(Conversation)

// Store owns the single mutable conversation. Every mutation is atomic:
// observers only ever see the state before or after a mutation, never a
// partially applied one. Subscribers run outside the store lock, after the
// mutation has been applied, in registration order.
type Store struct {
	mu         sync.Mutex
	messages   []*Message
	status     Status
	failure    string
	generation uint64

	subs    map[int]Subscriber
	nextSub int
}

// NewStore creates an empty store in the idle state.
func NewStore() *Store {
	return &Store{
		status: StatusIdle,
		subs:   make(map[int]Subscriber),
	}
}

// Snapshot returns a deep copy of the current conversation.
func (s *Store) Snapshot() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the current status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Generation returns the reset generation. It rises on every Reset; a
// stream reconciler captures it before its first mutation and passes it
// to the IfGeneration mutators, which drop the mutation once the store's
// generation has moved on.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// =============================================================================
// MUTATORS
// =============================================================================

// Append adds a message to the end of the conversation.
//
// Appending an assistant message while the status is streaming and the
// trailing message is an open assistant message returns ErrInvalidState:
// the correct operation there is MutateLast.
func (s *Store) Append(msg *Message) error {
	s.mu.Lock()

	if err := s.appendLocked(msg); err != nil {
		s.mu.Unlock()
		return err
	}
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

// AppendIfGeneration is Append guarded by the reset generation: the
// comparison and the mutation happen under one lock acquisition, so a
// Reset can never slip between check and append. Returns
// ErrStaleGeneration when the store has moved on.
func (s *Store) AppendIfGeneration(generation uint64, msg *Message) error {
	s.mu.Lock()

	if s.generation != generation {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	if err := s.appendLocked(msg); err != nil {
		s.mu.Unlock()
		return err
	}
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

func (s *Store) appendLocked(msg *Message) error {
	if msg.Role == RoleAssistant && s.status == StatusStreaming {
		if last := s.lastLocked(); last != nil && last.Role == RoleAssistant {
			return ErrInvalidState
		}
	}

	s.messages = append(s.messages, msg)
	s.pruneLocked()
	return nil
}

// MutateLast folds a part delta into the trailing message.
//
// A text delta whose open trailing part is text coalesces into that part;
// any other combination opens a new part (the variant-boundary rule).
// Empty deltas are ignored without notification, so keep-alive fragments
// never create spurious parts. Mutation is only legal while the status is
// streaming; anything else returns ErrInvalidState.
func (s *Store) MutateLast(delta PartDelta) error {
	if delta.IsEmpty() {
		return nil
	}

	s.mu.Lock()

	if err := s.mutateLastLocked(delta); err != nil {
		s.mu.Unlock()
		return err
	}
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

// MutateLastIfGeneration is MutateLast guarded by the reset generation,
// compared under the same lock as the mutation. Returns
// ErrStaleGeneration when the store has moved on.
func (s *Store) MutateLastIfGeneration(generation uint64, delta PartDelta) error {
	if delta.IsEmpty() {
		return nil
	}

	s.mu.Lock()

	if s.generation != generation {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	if err := s.mutateLastLocked(delta); err != nil {
		s.mu.Unlock()
		return err
	}
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

func (s *Store) mutateLastLocked(delta PartDelta) error {
	if s.status != StatusStreaming {
		return ErrInvalidState
	}
	last := s.lastLocked()
	if last == nil {
		return ErrInvalidState
	}

	n := len(last.Parts)
	if delta.Kind == PartText && n > 0 {
		if open, ok := last.Parts[n-1].(TextPart); ok {
			last.Parts[n-1] = TextPart{Content: open.Content + delta.Text}
			return nil
		}
	}

	last.Parts = append(last.Parts, delta.newPart())
	return nil
}

// SetStatus transitions the status. Moving away from StatusStreaming seals
// the trailing message: its parts are final from that point on. Moving to
// StatusSubmitted clears the previous failure indicator.
func (s *Store) SetStatus(status Status) {
	s.mu.Lock()
	s.setStatusLocked(status)
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
}

// SetStatusIfGeneration is SetStatus guarded by the reset generation,
// compared under the same lock as the transition. Returns
// ErrStaleGeneration when the store has moved on.
func (s *Store) SetStatusIfGeneration(generation uint64, status Status) error {
	s.mu.Lock()

	if s.generation != generation {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	s.setStatusLocked(status)
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

func (s *Store) setStatusLocked(status Status) {
	s.status = status
	if status == StatusSubmitted {
		s.failure = ""
	}
}

// Fail records a failed operation: the status becomes StatusError and the
// failure indicator is set in the same atomic mutation, so observers see
// exactly one failure per failed operation. Any partially reconciled
// assistant content is left exactly as far as it got.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	s.failLocked(err)
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
}

// FailIfGeneration is Fail guarded by the reset generation, compared
// under the same lock as the mutation: a failure from a stream whose
// conversation has since been reset never dirties the fresh store.
func (s *Store) FailIfGeneration(generation uint64, err error) error {
	s.mu.Lock()

	if s.generation != generation {
		s.mu.Unlock()
		return ErrStaleGeneration
	}
	s.failLocked(err)
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
	return nil
}

func (s *Store) failLocked(err error) {
	s.status = StatusError
	if err != nil {
		s.failure = err.Error()
	}
}

// Reset empties the conversation, returns the status to idle, clears the
// failure indicator, and advances the generation so in-flight streams stop
// applying fragments. Resetting an already empty store yields the same
// empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.status = StatusIdle
	s.failure = ""
	s.generation++
	snap, subs := s.notifyLocked()
	s.mu.Unlock()

	dispatch(snap, subs)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers a callback invoked synchronously after each
// successful mutation. The returned function removes the subscription.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notifyLocked builds the post-mutation snapshot and the subscriber list.
// Callbacks run outside the lock so a subscriber may safely read the store.
func (s *Store) notifyLocked() (Conversation, []Subscriber) {
	snap := s.snapshotLocked()
	subs := make([]Subscriber, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return snap, subs
}

// dispatch invokes subscribers in registration order.
func dispatch(snap Conversation, subs []Subscriber) {
	for _, fn := range subs {
		fn(snap)
	}
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// lastLocked returns the trailing message, or nil. Caller must hold mu.
func (s *Store) lastLocked() *Message {
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// snapshotLocked deep-copies the conversation. Caller must hold mu.
func (s *Store) snapshotLocked() Conversation {
	msgs := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.clone()
	}
	return Conversation{
		Messages: msgs,
		Status:   s.status,
		Failure:  s.failure,
	}
}

// pruneLocked drops the oldest messages once the history exceeds
// MaxMessages. Caller must hold mu.
func (s *Store) pruneLocked() {
	if len(s.messages) <= MaxMessages {
		return
	}
	start := len(s.messages) - MaxMessages
	s.messages = append([]*Message(nil), s.messages[start:]...)
}
