// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/chatomatic/internal/engine"
	"github.com/jeranaias/chatomatic/internal/model"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"plain text", "hello world", "", nil, false},
		{"bare slash", "/", "", nil, false},
		{"simple command", "/reset", "reset", nil, true},
		{"command with args", "/attach a.jpg b.png", "attach", []string{"a.jpg", "b.png"}, true},
		{"case folded", "/RESET", "reset", nil, true},
		{"leading whitespace", "  /help", "help", nil, true},
		{"slash mid-sentence", "half / half", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := parseCommand(tt.input)
			if ok != tt.wantOK || name != tt.wantName {
				t.Errorf("parseCommand(%q) = %q, %v, %v", tt.input, name, args, ok)
			}
			if len(args) != len(tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestFindCommand(t *testing.T) {
	if _, ok := findCommand("attach"); !ok {
		t.Error("attach command missing")
	}
	if _, ok := findCommand("frobnicate"); ok {
		t.Error("unexpected command resolved")
	}
}

func TestConvFeed_CoalescesBursts(t *testing.T) {
	feed := NewConvFeed()

	for i := 0; i < 100; i++ {
		feed.Push(model.Conversation{Status: model.StatusStreaming})
	}
	feed.Push(model.Conversation{Status: model.StatusIdle})

	msg := feed.Await()()
	conv, ok := msg.(ConvMsg)
	if !ok {
		t.Fatalf("Await() returned %T", msg)
	}
	if conv.Conversation.Status != model.StatusIdle {
		t.Errorf("got intermediate snapshot %v, want the newest", conv.Conversation.Status)
	}

	// The burst collapsed into a single delivery.
	done := make(chan struct{})
	go func() {
		feed.Await()()
		close(done)
	}()
	select {
	case <-done:
		t.Error("second Await() delivered a stale snapshot")
	case <-time.After(50 * time.Millisecond):
	}
	feed.Push(model.Conversation{})
	<-done
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	eng := engine.New(model.NewStore(), nil)
	m := New(context.Background(), eng, Options{ModelName: "test/model"})
	t.Cleanup(m.Close)
	m.resize(80, 24)
	return m
}

func TestView_EmptyConversation(t *testing.T) {
	m := newTestModel(t)
	if !strings.Contains(m.View(), "No messages yet") {
		t.Error("empty-state hint missing")
	}
	if !strings.Contains(m.View(), "test/model") {
		t.Error("model name missing from header")
	}
}

func TestRenderConversation_ShowsPartsAndCursor(t *testing.T) {
	m := newTestModel(t)

	user := model.NewUserMessage([]model.Part{
		model.FilePart{MediaType: "image/jpeg", URI: "data:image/jpeg;base64,AA"},
		model.TextPart{Content: "what is this?"},
	})
	assistant := model.NewAssistantMessage()
	assistant.Parts = []model.Part{model.TextPart{Content: "Looks like"}}

	m.conv = model.Conversation{
		Messages: []*model.Message{user, assistant},
		Status:   model.StatusStreaming,
	}

	out := m.renderConversation()
	if !strings.Contains(out, "what is this?") {
		t.Error("user text missing")
	}
	if !strings.Contains(out, "image/jpeg attachment") {
		t.Error("image tag missing")
	}
	if !strings.Contains(out, streamCursor) {
		t.Error("streaming cursor missing on open assistant message")
	}

	// Sealing removes the cursor.
	m.conv.Status = model.StatusIdle
	if strings.Contains(m.renderConversation(), streamCursor) {
		t.Error("cursor rendered on sealed message")
	}
}

func TestRenderConversation_IgnoresUnknownParts(t *testing.T) {
	m := newTestModel(t)

	msg := model.NewUserMessage([]model.Part{
		model.UnknownPart{TypeTag: "audio", Raw: []byte(`{"type":"audio"}`)},
		model.TextPart{Content: "with sound"},
	})
	m.conv = model.Conversation{Messages: []*model.Message{msg}, Status: model.StatusIdle}

	out := m.renderConversation()
	if strings.Contains(out, "audio") {
		t.Error("unknown part leaked into the rendering")
	}
	if !strings.Contains(out, "with sound") {
		t.Error("text sibling of unknown part missing")
	}
}
