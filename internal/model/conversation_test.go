// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
package model

import (
	"errors"
	"testing"
)

// =============================================================================
// MUTATE LAST TESTS
// =============================================================================

func TestStore_MutateLast_CoalescesTextDeltas(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
		want   string
	}{
		{
			name:   "three fragments",
			deltas: []string{"Hi", " there", "!"},
			want:   "Hi there!",
		},
		{
			name:   "single fragment",
			deltas: []string{"hello"},
			want:   "hello",
		},
		{
			name:   "unicode fragments",
			deltas: []string{"你", "好", "!"},
			want:   "你好!",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			s.SetStatus(StatusStreaming)
			if err := s.Append(NewAssistantMessage()); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			for _, d := range tc.deltas {
				if err := s.MutateLast(TextDelta(d)); err != nil {
					t.Fatalf("MutateLast(%q) error = %v", d, err)
				}
			}

			snap := s.Snapshot()
			last := snap.LastMessage()
			if got := len(last.Parts); got != 1 {
				t.Fatalf("expected a single coalesced text part, got %d parts", got)
			}
			if got := last.TextContent(); got != tc.want {
				t.Errorf("TextContent() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStore_MutateLast_VariantBoundaryOpensNewPart(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := s.MutateLast(TextDelta("before")); err != nil {
		t.Fatalf("MutateLast(text) error = %v", err)
	}
	if err := s.MutateLast(FileDelta("image/jpeg", "data:image/jpeg;base64,AAAA")); err != nil {
		t.Fatalf("MutateLast(file) error = %v", err)
	}
	if err := s.MutateLast(TextDelta("after")); err != nil {
		t.Fatalf("MutateLast(text) error = %v", err)
	}

	last := s.Snapshot().LastMessage()
	if got := len(last.Parts); got != 3 {
		t.Fatalf("expected 3 parts (text, file, text), got %d", got)
	}
	if _, ok := last.Parts[0].(TextPart); !ok {
		t.Errorf("part 0 should be TextPart, got %T", last.Parts[0])
	}
	if _, ok := last.Parts[1].(FilePart); !ok {
		t.Errorf("part 1 should be FilePart, got %T", last.Parts[1])
	}
	if got := last.Parts[2].(TextPart).Content; got != "after" {
		t.Errorf("part 2 content = %q, want %q", got, "after")
	}
}

func TestStore_MutateLast_IgnoresEmptyDeltas(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Keep-alive fragments carry no content and must not create parts.
	if err := s.MutateLast(TextDelta("")); err != nil {
		t.Fatalf("MutateLast(empty) error = %v", err)
	}

	if got := len(s.Snapshot().LastMessage().Parts); got != 0 {
		t.Errorf("empty delta created %d parts, want 0", got)
	}
}

func TestStore_MutateLast_RejectedOutsideStreaming(t *testing.T) {
	tests := []struct {
		name   string
		status Status
	}{
		{name: "idle", status: StatusIdle},
		{name: "submitted", status: StatusSubmitted},
		{name: "error", status: StatusError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			s.SetStatus(StatusStreaming)
			if err := s.Append(NewAssistantMessage()); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			s.SetStatus(tc.status)

			err := s.MutateLast(TextDelta("late"))
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("MutateLast() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestStore_SealingFreezesLastMessage(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.MutateLast(TextDelta("final")); err != nil {
		t.Fatalf("MutateLast() error = %v", err)
	}

	// Stream completion seals the message.
	s.SetStatus(StatusIdle)

	if err := s.MutateLast(TextDelta("x")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("mutation after sealing should fail, got %v", err)
	}
	if got := s.Snapshot().LastMessage().TextContent(); got != "final" {
		t.Errorf("sealed content = %q, want %q", got, "final")
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestStore_Append_RejectsSecondOpenAssistant(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("first Append() error = %v", err)
	}

	err := s.Append(NewAssistantMessage())
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Append() error = %v, want ErrInvalidState", err)
	}
	if got := len(s.Snapshot().Messages); got != 1 {
		t.Errorf("rejected append changed the store: %d messages, want 1", got)
	}
}

func TestStore_Append_UserDuringStreamingAllowed(t *testing.T) {
	// The invalid-state rule only guards duplicate open assistant targets.
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewUserMessage([]Part{TextPart{Content: "hi"}})); err != nil {
		t.Errorf("Append(user) error = %v", err)
	}
}

// =============================================================================
// RESET TESTS
// =============================================================================

func TestStore_Reset_Idempotent(t *testing.T) {
	s := NewStore()
	if err := s.Append(NewUserMessage([]Part{TextPart{Content: "hello"}})); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	s.Fail(errors.New("boom"))

	s.Reset()
	first := s.Snapshot()
	s.Reset()
	second := s.Snapshot()

	for i, snap := range []Conversation{first, second} {
		if !snap.IsEmpty() {
			t.Errorf("reset %d: conversation not empty", i+1)
		}
		if snap.Status != StatusIdle {
			t.Errorf("reset %d: status = %q, want idle", i+1, snap.Status)
		}
		if snap.Failure != "" {
			t.Errorf("reset %d: failure indicator not cleared", i+1)
		}
	}
}

func TestStore_Reset_AdvancesGeneration(t *testing.T) {
	s := NewStore()
	g0 := s.Generation()
	s.Reset()
	g1 := s.Generation()
	s.Reset()
	g2 := s.Generation()

	if g1 <= g0 || g2 <= g1 {
		t.Errorf("generation did not rise: %d, %d, %d", g0, g1, g2)
	}
}

// The guarded mutators compare the caller's generation under the same
// lock as the mutation, so a stale stream can never write into a
// conversation that was reset after the check would have passed.
func TestStore_GenerationGuardedMutators(t *testing.T) {
	s := NewStore()
	gen := s.Generation()

	if err := s.AppendIfGeneration(gen, NewUserMessage([]Part{TextPart{Content: "hi"}})); err != nil {
		t.Fatalf("AppendIfGeneration() with current generation error = %v", err)
	}
	if err := s.SetStatusIfGeneration(gen, StatusStreaming); err != nil {
		t.Fatalf("SetStatusIfGeneration() with current generation error = %v", err)
	}
	if err := s.MutateLastIfGeneration(gen, TextDelta("there")); err != nil {
		t.Fatalf("MutateLastIfGeneration() with current generation error = %v", err)
	}

	s.Reset()

	tests := []struct {
		name string
		call func() error
	}{
		{"append", func() error {
			return s.AppendIfGeneration(gen, NewAssistantMessage())
		}},
		{"mutate last", func() error {
			return s.MutateLastIfGeneration(gen, TextDelta("stale"))
		}},
		{"set status", func() error {
			return s.SetStatusIfGeneration(gen, StatusStreaming)
		}},
		{"fail", func() error {
			return s.FailIfGeneration(gen, errors.New("stale boom"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrStaleGeneration) {
				t.Errorf("error = %v, want ErrStaleGeneration", err)
			}
		})
	}

	snap := s.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("stale mutation landed: %+v", snap.Messages)
	}
	if snap.Status != StatusIdle || snap.Failure != "" {
		t.Errorf("stale mutation changed state: status %q, failure %q", snap.Status, snap.Failure)
	}
}

// Stale drops must also be silent: no subscriber notification fires for
// a mutation that did not happen.
func TestStore_StaleMutationDoesNotNotify(t *testing.T) {
	s := NewStore()
	gen := s.Generation()
	s.Reset()

	calls := 0
	unsubscribe := s.Subscribe(func(Conversation) { calls++ })
	defer unsubscribe()

	_ = s.AppendIfGeneration(gen, NewUserMessage([]Part{TextPart{Content: "x"}}))
	_ = s.SetStatusIfGeneration(gen, StatusStreaming)
	_ = s.FailIfGeneration(gen, errors.New("x"))

	if calls != 0 {
		t.Errorf("stale mutations notified subscribers %d time(s)", calls)
	}
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestStore_Fail_PreservesPartialContent(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.MutateLast(TextDelta("Par")); err != nil {
		t.Fatalf("MutateLast() error = %v", err)
	}

	s.Fail(errors.New("connection reset"))

	snap := s.Snapshot()
	if snap.Status != StatusError {
		t.Errorf("status = %q, want error", snap.Status)
	}
	if got := snap.LastMessage().TextContent(); got != "Par" {
		t.Errorf("partial content = %q, want %q (no rollback)", got, "Par")
	}
	if snap.Failure != "connection reset" {
		t.Errorf("failure indicator = %q, want %q", snap.Failure, "connection reset")
	}
}

func TestStore_SetStatus_SubmittedClearsFailure(t *testing.T) {
	s := NewStore()
	s.Fail(errors.New("boom"))
	s.SetStatus(StatusSubmitted)

	if got := s.Snapshot().Failure; got != "" {
		t.Errorf("failure indicator = %q after new submission, want empty", got)
	}
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestStore_Subscribe_SynchronousPerMutation(t *testing.T) {
	s := NewStore()

	var seen []Status
	unsub := s.Subscribe(func(c Conversation) {
		seen = append(seen, c.Status)
	})

	s.SetStatus(StatusSubmitted)
	s.SetStatus(StatusStreaming)
	s.SetStatus(StatusIdle)

	want := []Status{StatusSubmitted, StatusStreaming, StatusIdle}
	if len(seen) != len(want) {
		t.Fatalf("got %d notifications, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, seen[i], want[i])
		}
	}

	unsub()
	s.SetStatus(StatusError)
	if len(seen) != len(want) {
		t.Errorf("unsubscribed callback was still invoked")
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.SetStatus(StatusStreaming)
	if err := s.Append(NewAssistantMessage()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.MutateLast(TextDelta("a")); err != nil {
		t.Fatalf("MutateLast() error = %v", err)
	}

	before := s.Snapshot()
	if err := s.MutateLast(TextDelta("b")); err != nil {
		t.Fatalf("MutateLast() error = %v", err)
	}

	// The earlier snapshot must not reflect the later mutation.
	if got := before.LastMessage().TextContent(); got != "a" {
		t.Errorf("snapshot mutated in place: %q, want %q", got, "a")
	}
}
