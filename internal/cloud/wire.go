// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming client for the remote chat
// completions endpoint.
package cloud

import (
	"encoding/json"

	"github.com/jeranaias/chatomatic/internal/model"
)

// =============================================================================
// OUTBOUND MESSAGE TYPES
// =============================================================================

// ContentPart is one element of a structured message content array, in the
// chat completions content-part shape.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef wraps an image URL. Attachments travel as base64 data URIs
// embedded directly in the request; there is no separate upload channel.
type ImageRef struct {
	URL string `json:"url"`
}

// MessageContent is either plain text or a structured part array.
// Text-only messages marshal as a bare JSON string for compatibility with
// the widest range of upstream models.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// MarshalJSON emits a bare string when there are no structured parts.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) == 0 {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// UnmarshalJSON accepts both the bare-string and the part-array form.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	c.Parts = parts
	c.Text = ""
	return nil
}

// PlainText flattens the content to text, joining text parts in order.
func (c MessageContent) PlainText() string {
	if len(c.Parts) == 0 {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// ChatMessage is one entry of the outbound message history.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ChatRequest is the JSON document POSTed per user turn: the full ordered
// message history plus streaming options.
type ChatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// =============================================================================
// CONVERSATION CONVERSION
// =============================================================================

// FromConversation converts a conversation snapshot into the outbound wire
// history. Text parts become text content, file parts become image_url
// parts carrying the data URI, and unknown parts are skipped. Messages
// with no convertible content are dropped.
func FromConversation(conv model.Conversation) []ChatMessage {
	out := make([]ChatMessage, 0, len(conv.Messages))

	for _, msg := range conv.Messages {
		wire := ChatMessage{Role: msg.Role.String()}

		var parts []ContentPart
		hasFile := false
		for _, p := range msg.Parts {
			switch v := p.(type) {
			case model.TextPart:
				parts = append(parts, ContentPart{Type: "text", Text: v.Content})
			case model.FilePart:
				parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageRef{URL: v.URI}})
				hasFile = true
			}
		}
		if len(parts) == 0 {
			continue
		}

		if hasFile {
			wire.Content = MessageContent{Parts: parts}
		} else {
			wire.Content = MessageContent{Text: model.TextContent(msg.Parts)}
		}
		out = append(out, wire)
	}

	return out
}
