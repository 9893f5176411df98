// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
package model

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// PART KINDS
// =============================================================================

// PartKind identifies the variant of a message part.
type PartKind string

const (
	// PartText is a textual part. It is the only mutable variant: while the
	// owning message is the active streaming target its content grows by
	// append.
	PartText PartKind = "text"

	// PartFile is an attached file (an image payload encoded as a data URI).
	// File parts are immutable once created.
	PartFile PartKind = "file"

	// PartUnknown is any variant this build does not recognize. Renderers
	// must skip unknown parts rather than fail, so that newer peers can add
	// part types without breaking older clients.
	PartUnknown PartKind = "unknown"
)

// =============================================================================
// PART UNION
// =============================================================================

// Part is one typed sub-unit of a message.
//
// The concrete types are TextPart, FilePart, and UnknownPart. Parts are
// treated as values: replacing a part means replacing the slice element,
// never mutating a shared pointer.
type Part interface {
	Kind() PartKind
}

// TextPart holds message text. Content grows by append while the owning
// message is streaming and is frozen once the message is sealed.
type TextPart struct {
	Content string `json:"text"`
}

// Kind returns PartText.
func (p TextPart) Kind() PartKind { return PartText }

// FilePart holds an attached image as a base64 data URI with an explicit
// media type. It is produced by the image preprocessor and never mutated.
type FilePart struct {
	MediaType string `json:"media_type"`
	URI       string `json:"uri"`
}

// Kind returns PartFile.
func (p FilePart) Kind() PartKind { return PartFile }

// UnknownPart preserves a part whose type tag this build does not know.
// The raw payload is kept so a round-trip does not drop data.
type UnknownPart struct {
	TypeTag string          `json:"type"`
	Raw     json.RawMessage `json:"-"`
}

// Kind returns PartUnknown.
func (p UnknownPart) Kind() PartKind { return PartUnknown }

// =============================================================================
// PART DELTA
// =============================================================================

// PartDelta is one unit of incremental content applied to the trailing
// message of a streaming conversation.
//
// A text delta coalesces into the currently open text part; a delta of any
// other kind (or a text delta arriving while the open part is not text)
// opens a new part instead. This is the variant-boundary rule: deltas never
// corrupt a part of a different kind.
type PartDelta struct {
	Kind PartKind

	// Text content for PartText deltas.
	Text string

	// File payload for PartFile deltas.
	MediaType string
	URI       string

	// Raw payload for PartUnknown deltas.
	TypeTag string
	Raw     json.RawMessage
}

// TextDelta builds a text delta.
func TextDelta(text string) PartDelta {
	return PartDelta{Kind: PartText, Text: text}
}

// FileDelta builds a file delta.
func FileDelta(mediaType, uri string) PartDelta {
	return PartDelta{Kind: PartFile, MediaType: mediaType, URI: uri}
}

// IsEmpty reports whether the delta carries no content. Empty deltas come
// from keep-alive fragments and must not create spurious parts.
func (d PartDelta) IsEmpty() bool {
	switch d.Kind {
	case PartText:
		return d.Text == ""
	case PartFile:
		return d.URI == ""
	default:
		return len(d.Raw) == 0
	}
}

// newPart materializes a fresh part from a delta.
func (d PartDelta) newPart() Part {
	switch d.Kind {
	case PartText:
		return TextPart{Content: d.Text}
	case PartFile:
		return FilePart{MediaType: d.MediaType, URI: d.URI}
	default:
		return UnknownPart{TypeTag: d.TypeTag, Raw: d.Raw}
	}
}

// =============================================================================
// JSON ENCODING
// =============================================================================

// partEnvelope is the wire shape of a part: a type tag plus the variant's
// own fields, flattened.
type partEnvelope struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// MarshalPart encodes a part with its type tag.
func MarshalPart(p Part) ([]byte, error) {
	switch v := p.(type) {
	case TextPart:
		return json.Marshal(partEnvelope{Type: string(PartText), Text: v.Content})
	case FilePart:
		return json.Marshal(partEnvelope{Type: string(PartFile), MediaType: v.MediaType, URI: v.URI})
	case UnknownPart:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
		return json.Marshal(partEnvelope{Type: v.TypeTag})
	default:
		return json.Marshal(partEnvelope{Type: string(PartUnknown)})
	}
}

// UnmarshalPart decodes a part, mapping unrecognized type tags to
// UnknownPart rather than returning an error.
func UnmarshalPart(data []byte) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch PartKind(env.Type) {
	case PartText:
		return TextPart{Content: env.Text}, nil
	case PartFile:
		return FilePart{MediaType: env.MediaType, URI: env.URI}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownPart{TypeTag: env.Type, Raw: raw}, nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// TextContent concatenates the content of all text parts in order.
// Non-text parts are skipped.
func TextContent(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
