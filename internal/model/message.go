// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn entry: an ordered sequence of parts with an
// opaque identity and a role.
//
// Parts are append-only while the message is the active streaming target;
// once the owning conversation's status leaves StatusStreaming the message
// is sealed and never mutated again.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	Parts []Part `json:"parts"`
}

// NewUserMessage creates a user message from prebuilt parts.
func NewUserMessage(parts []Part) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Timestamp: time.Now(),
		Parts:     parts,
	}
}

// NewAssistantMessage creates an empty assistant message. The stream
// reconciler appends it before the first content fragment is folded in, so
// observers can show an in-progress assistant turn with zero parts.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// TextContent returns the concatenated content of the message's text parts.
func (m *Message) TextContent() string {
	return TextContent(m.Parts)
}

// IsEmpty reports whether the message has no parts.
func (m *Message) IsEmpty() bool {
	return len(m.Parts) == 0
}

// FileParts returns the message's file parts in order.
func (m *Message) FileParts() []FilePart {
	var files []FilePart
	for _, p := range m.Parts {
		if f, ok := p.(FilePart); ok {
			files = append(files, f)
		}
	}
	return files
}

// Preview returns a truncated preview of the message text.
// Rune-based truncation keeps multi-byte characters intact.
func (m *Message) Preview(maxLen int) string {
	content := m.TextContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// clone returns a deep copy of the message. Parts are value types, so
// copying the slice is sufficient.
func (m *Message) clone() *Message {
	cp := *m
	cp.Parts = make([]Part, len(m.Parts))
	copy(cp.Parts, m.Parts)
	return &cp
}

// =============================================================================
// JSON ENCODING
// =============================================================================

// messageEnvelope is the wire shape of a message.
type messageEnvelope struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Timestamp time.Time         `json:"timestamp"`
	Parts     []json.RawMessage `json:"parts"`
}

// MarshalJSON encodes the message with tagged parts.
func (m Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{
		ID:        m.ID,
		Role:      m.Role,
		Timestamp: m.Timestamp,
		Parts:     make([]json.RawMessage, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		raw, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		env.Parts = append(env.Parts, raw)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the message, keeping unrecognized part variants as
// UnknownPart.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	m.ID = env.ID
	m.Role = env.Role
	m.Timestamp = env.Timestamp
	m.Parts = make([]Part, 0, len(env.Parts))
	for _, raw := range env.Parts {
		part, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}
