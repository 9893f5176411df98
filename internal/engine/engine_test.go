// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/chatomatic/internal/cloud"
	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// scriptStream is a Streamer driven by a per-test run function.
type scriptStream struct {
	mu    sync.Mutex
	calls int
	run   func(ctx context.Context, cb cloud.FragmentCallback) error
}

func (s *scriptStream) Stream(ctx context.Context, msgs []cloud.ChatMessage, cb cloud.FragmentCallback) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		cb(cloud.Fragment{Kind: cloud.FragmentEnd})
		return nil
	}
	return s.run(ctx, cb)
}

func (s *scriptStream) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// deliver returns a run function that emits the texts as deltas followed
// by a clean end.
func deliver(texts ...string) func(context.Context, cloud.FragmentCallback) error {
	return func(_ context.Context, cb cloud.FragmentCallback) error {
		for _, t := range texts {
			cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: t})
		}
		cb(cloud.Fragment{Kind: cloud.FragmentEnd})
		return nil
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// settle waits for the in-flight turn to resolve.
func settle(t *testing.T, e *Engine) {
	t.Helper()
	waitFor(t, func() bool { return !e.Busy() })
}

// jpegSource encodes a blank image of the given size.
func jpegSource(t *testing.T, w, h int) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return &buf
}

func textOf(t *testing.T, p model.Part) string {
	t.Helper()
	tp, ok := p.(model.TextPart)
	if !ok {
		t.Fatalf("part is %T, want TextPart", p)
	}
	return tp.Content
}

// =============================================================================
// TURN DISPATCH
// =============================================================================

func TestEngine_TextTurnStreamsToCompletion(t *testing.T) {
	stream := &scriptStream{run: deliver("Hi", " there", "!")}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}

	user := conv.Messages[0]
	if user.Role != model.RoleUser || len(user.Parts) != 1 || textOf(t, user.Parts[0]) != "hello" {
		t.Errorf("user message = %+v", user)
	}

	assistant := conv.Messages[1]
	if assistant.Role != model.RoleAssistant {
		t.Fatalf("assistant role = %v", assistant.Role)
	}
	if len(assistant.Parts) != 1 || textOf(t, assistant.Parts[0]) != "Hi there!" {
		t.Errorf("assistant parts = %+v, want one text part %q", assistant.Parts, "Hi there!")
	}

	if conv.Status != model.StatusIdle {
		t.Errorf("status = %v, want idle", conv.Status)
	}
}

func TestEngine_ImageOnlyTurnUsesFallbackPrompt(t *testing.T) {
	stream := &scriptStream{run: deliver("A photo.")}
	e := New(model.NewStore(), stream)

	report := e.Pending().AddImages([]io.Reader{
		jpegSource(t, 8, 8),
		jpegSource(t, 8, 8),
	})
	if len(report.Added) != 2 {
		t.Fatalf("staged = %d, want 2", len(report.Added))
	}

	if err := e.Submit(context.Background(), "   "); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	user := conv.Messages[0]
	if len(user.Parts) != 3 {
		t.Fatalf("user parts = %d, want 3", len(user.Parts))
	}
	for i := 0; i < 2; i++ {
		fp, ok := user.Parts[i].(model.FilePart)
		if !ok {
			t.Fatalf("part %d is %T, want FilePart", i, user.Parts[i])
		}
		if fp.MediaType != "image/jpeg" {
			t.Errorf("part %d media type = %q", i, fp.MediaType)
		}
	}
	if got := textOf(t, user.Parts[2]); got != FallbackPrompt {
		t.Errorf("trailing text part = %q, want fallback prompt", got)
	}

	if e.Pending().Count() != 0 {
		t.Errorf("pending not cleared after submit: %d", e.Pending().Count())
	}
}

func TestEngine_EmptySubmissionIsNoOp(t *testing.T) {
	stream := &scriptStream{}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "  \n "); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	if stream.callCount() != 0 {
		t.Errorf("stream dispatched %d times, want 0", stream.callCount())
	}
	if conv := e.Store().Snapshot(); len(conv.Messages) != 0 || conv.Status != model.StatusIdle {
		t.Errorf("store mutated by empty submission: %+v", conv)
	}
}

func TestEngine_SecondSubmitWhileInFlightIsRejected(t *testing.T) {
	firstDelta := make(chan struct{})
	release := make(chan struct{})
	stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
		cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "thinking"})
		close(firstDelta)
		<-release
		cb(cloud.Fragment{Kind: cloud.FragmentEnd})
		return nil
	}}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-firstDelta

	before := e.Store().Snapshot()
	if err := e.Submit(context.Background(), "second"); err != ErrBusy {
		t.Errorf("second Submit() error = %v, want ErrBusy", err)
	}
	after := e.Store().Snapshot()
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("rejected submit altered the store: %d -> %d messages", len(before.Messages), len(after.Messages))
	}

	close(release)
	settle(t, e)
}

// =============================================================================
// STREAM RECONCILIATION
// =============================================================================

func TestEngine_KeepAliveFragmentsCreateNoParts(t *testing.T) {
	stream := &scriptStream{run: deliver("", "", "ok", "")}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	assistant := conv.Messages[len(conv.Messages)-1]
	if len(assistant.Parts) != 1 || textOf(t, assistant.Parts[0]) != "ok" {
		t.Errorf("assistant parts = %+v, want one text part %q", assistant.Parts, "ok")
	}
}

func TestEngine_SilentStreamLeavesNoAssistantMessage(t *testing.T) {
	stream := &scriptStream{run: deliver()}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "hello?"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	if len(conv.Messages) != 1 {
		t.Errorf("messages = %d, want just the user turn", len(conv.Messages))
	}
	if conv.Status != model.StatusIdle {
		t.Errorf("status = %v, want idle", conv.Status)
	}
}

func TestEngine_StreamFailurePreservesPartialContent(t *testing.T) {
	wantErr := &cloud.ClientError{Type: cloud.ErrTypeTransport, Message: "connection reset"}
	stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
		cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "Par"})
		cb(cloud.Fragment{Kind: cloud.FragmentError, Err: wantErr})
		return wantErr
	}}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "go on"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	assistant := conv.Messages[len(conv.Messages)-1]
	if len(assistant.Parts) != 1 || textOf(t, assistant.Parts[0]) != "Par" {
		t.Errorf("partial content = %+v, want %q preserved", assistant.Parts, "Par")
	}
	if conv.Status != model.StatusError {
		t.Errorf("status = %v, want error", conv.Status)
	}
	if conv.Failure == "" {
		t.Error("failure indicator not surfaced")
	}
}

func TestEngine_FailureBeforeFirstFragment(t *testing.T) {
	wantErr := errors.New("dial refused")
	stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
		cb(cloud.Fragment{Kind: cloud.FragmentError, Err: wantErr})
		return wantErr
	}}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	if len(conv.Messages) != 1 {
		t.Errorf("messages = %d, want just the user turn", len(conv.Messages))
	}
	if conv.Status != model.StatusError || conv.Failure == "" {
		t.Errorf("status = %v failure = %q, want surfaced error", conv.Status, conv.Failure)
	}
}

// =============================================================================
// RESET
// =============================================================================

func TestEngine_ResetMidStreamDropsLaterFragments(t *testing.T) {
	firstDelta := make(chan struct{})
	release := make(chan struct{})
	stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
		cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "Hel"})
		close(firstDelta)
		<-release
		cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "lo"})
		cb(cloud.Fragment{Kind: cloud.FragmentEnd})
		return nil
	}}
	e := New(model.NewStore(), stream)

	if err := e.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-firstDelta

	e.ResetAll()
	close(release)
	settle(t, e)

	conv := e.Store().Snapshot()
	if len(conv.Messages) != 0 {
		t.Errorf("stale fragments applied after reset: %+v", conv.Messages)
	}
	if conv.Status != model.StatusIdle {
		t.Errorf("status = %v, want idle", conv.Status)
	}
}

// A reset can land between the turn claiming the in-flight slot and its
// first stream mutation, including synchronously from a store subscriber
// reacting to the submitted notification. The generation captured at
// claim time must make every later mutation of that turn a no-op.
func TestEngine_ResetFromSubscriberDuringSubmitDropsWholeStream(t *testing.T) {
	release := make(chan struct{})
	stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
		<-release
		cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "late"})
		cb(cloud.Fragment{Kind: cloud.FragmentEnd})
		return nil
	}}
	store := model.NewStore()
	e := New(store, stream)

	var once sync.Once
	unsubscribe := store.Subscribe(func(conv model.Conversation) {
		if conv.Status == model.StatusSubmitted {
			once.Do(e.ResetAll)
		}
	})
	defer unsubscribe()

	if err := e.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	close(release)
	settle(t, e)

	conv := store.Snapshot()
	if len(conv.Messages) != 0 {
		t.Errorf("stale fragments applied after reset: %d message(s), %+v",
			len(conv.Messages), conv.Messages)
	}
	if conv.Status != model.StatusIdle {
		t.Errorf("status = %v, want idle", conv.Status)
	}
}

// A reset racing the first-fragment branch itself: the stream opens the
// assistant message while ResetAll runs on another goroutine. Whatever
// the interleaving, no stale content may survive into the fresh
// conversation.
func TestEngine_ResetRacingFirstFragmentLeavesNoStaleContent(t *testing.T) {
	for i := 0; i < 50; i++ {
		firstDelta := make(chan struct{})
		stream := &scriptStream{run: func(_ context.Context, cb cloud.FragmentCallback) error {
			cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "sta"})
			close(firstDelta)
			cb(cloud.Fragment{Kind: cloud.FragmentTextDelta, Text: "le"})
			cb(cloud.Fragment{Kind: cloud.FragmentEnd})
			return nil
		}}
		e := New(model.NewStore(), stream)

		if err := e.Submit(context.Background(), "hi"); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		<-firstDelta
		e.ResetAll()
		settle(t, e)

		conv := e.Store().Snapshot()
		for _, msg := range conv.Messages {
			if msg.Role == model.RoleAssistant {
				t.Fatalf("iteration %d: stale assistant content after reset: %q",
					i, model.TextContent(msg.Parts))
			}
		}
	}
}

func TestEngine_ResetClearsPendingAttachments(t *testing.T) {
	e := New(model.NewStore(), &scriptStream{})

	e.Pending().AddImages([]io.Reader{jpegSource(t, 8, 8)})
	if e.Pending().Count() != 1 {
		t.Fatalf("staged = %d, want 1", e.Pending().Count())
	}

	e.ResetAll()
	if e.Pending().Count() != 0 {
		t.Errorf("pending survived reset: %d", e.Pending().Count())
	}
}

// =============================================================================
// QUICK PROMPTS
// =============================================================================

func TestEngine_QuickPromptSubmitsTextOnlyTurn(t *testing.T) {
	stream := &scriptStream{run: deliver("Sure.")}
	e := New(model.NewStore(), stream)

	e.Pending().AddImages([]io.Reader{jpegSource(t, 8, 8)})

	if err := e.QuickPrompt(context.Background(), "continue"); err != nil {
		t.Fatalf("QuickPrompt() error = %v", err)
	}
	settle(t, e)

	conv := e.Store().Snapshot()
	user := conv.Messages[0]
	if len(user.Parts) != 1 {
		t.Fatalf("quick prompt turn parts = %d, want text only", len(user.Parts))
	}
	if e.Pending().Count() != 1 {
		t.Errorf("quick prompt consumed staged attachments")
	}
}

func TestEngine_QuickPromptUnknownName(t *testing.T) {
	e := New(model.NewStore(), &scriptStream{})
	if err := e.QuickPrompt(context.Background(), "no-such"); err != ErrUnknownPrompt {
		t.Errorf("QuickPrompt() error = %v, want ErrUnknownPrompt", err)
	}
}

func TestPromptSet_SetAndNames(t *testing.T) {
	ps := DefaultPrompts()
	ps.Set("custom", "Do the thing.")

	text, err := ps.Resolve("custom")
	if err != nil || text != "Do the thing." {
		t.Errorf("Resolve(custom) = %q, %v", text, err)
	}

	ps.Set("custom", "")
	if _, err := ps.Resolve("custom"); err != ErrUnknownPrompt {
		t.Errorf("removed prompt still resolves: %v", err)
	}

	names := ps.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}
