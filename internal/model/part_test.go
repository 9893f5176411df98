// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
package model

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// PART DECODING TESTS
// =============================================================================

func TestUnmarshalPart_KnownVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
		want PartKind
	}{
		{name: "text", data: `{"type":"text","text":"hi"}`, want: PartText},
		{name: "file", data: `{"type":"file","media_type":"image/jpeg","uri":"data:image/jpeg;base64,AA=="}`, want: PartFile},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := UnmarshalPart([]byte(tc.data))
			if err != nil {
				t.Fatalf("UnmarshalPart() error = %v", err)
			}
			if p.Kind() != tc.want {
				t.Errorf("Kind() = %q, want %q", p.Kind(), tc.want)
			}
		})
	}
}

func TestUnmarshalPart_UnknownVariantDoesNotFail(t *testing.T) {
	data := []byte(`{"type":"reasoning","text":"thinking...","depth":3}`)

	p, err := UnmarshalPart(data)
	if err != nil {
		t.Fatalf("UnmarshalPart() error = %v, unknown variants must decode", err)
	}

	u, ok := p.(UnknownPart)
	if !ok {
		t.Fatalf("got %T, want UnknownPart", p)
	}
	if u.TypeTag != "reasoning" {
		t.Errorf("TypeTag = %q, want %q", u.TypeTag, "reasoning")
	}

	// Round trip keeps the original payload.
	out, err := MarshalPart(u)
	if err != nil {
		t.Fatalf("MarshalPart() error = %v", err)
	}
	var a, b map[string]any
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &b); err != nil {
		t.Fatal(err)
	}
	if a["depth"] != b["depth"] {
		t.Errorf("unknown part dropped fields on round trip: %s", out)
	}
}

// =============================================================================
// MESSAGE ENCODING TESTS
// =============================================================================

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := NewUserMessage([]Part{
		FilePart{MediaType: "image/jpeg", URI: "data:image/jpeg;base64,AA=="},
		TextPart{Content: "what is this?"},
	})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.ID != msg.ID || got.Role != RoleUser {
		t.Errorf("identity lost: got ID=%q role=%q", got.ID, got.Role)
	}
	if len(got.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(got.Parts))
	}
	if got.Parts[0].Kind() != PartFile || got.Parts[1].Kind() != PartText {
		t.Errorf("part order not preserved: %q, %q", got.Parts[0].Kind(), got.Parts[1].Kind())
	}
	if got.TextContent() != "what is this?" {
		t.Errorf("TextContent() = %q", got.TextContent())
	}
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestTextContent_SkipsNonText(t *testing.T) {
	parts := []Part{
		TextPart{Content: "a"},
		FilePart{MediaType: "image/jpeg", URI: "data:..."},
		TextPart{Content: "b"},
		UnknownPart{TypeTag: "widget"},
	}
	if got := TextContent(parts); got != "ab" {
		t.Errorf("TextContent() = %q, want %q", got, "ab")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage([]Part{TextPart{Content: "a very long message indeed"}})
	if got := msg.Preview(10); got != "a very ..." {
		t.Errorf("Preview(10) = %q", got)
	}
	if got := msg.Preview(100); got != "a very long message indeed" {
		t.Errorf("Preview(100) = %q", got)
	}
}
