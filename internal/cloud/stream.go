// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming client for the remote chat
// completions endpoint.
package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// =============================================================================
// SSE DECODING
// =============================================================================

// sseChunk is the JSON payload of one chat completions stream event.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the first choice's delta content.
func (c *sseChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// done reports whether the chunk carries a finish reason.
func (c *sseChunk) done() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// SSEReader parses server-sent events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event's data payload. Comment lines and
// non-data fields are skipped. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimPrefix(line, []byte("data:"))
			data = bytes.TrimPrefix(data, []byte(" "))
			size += len(data)
			if size > MaxEventSize {
				return nil, &ClientError{Type: ErrTypeProtocol, Message: "event exceeds size limit"}
			}
			dataLines = append(dataLines, data)
		}
		// Other fields (event:, id:, retry:, ": comment") are ignored.
	}
}

// decodeSSE reads chat completion events and emits text-delta fragments
// until [DONE] or a finish reason. Malformed event JSON is a protocol
// error: the stream stops rather than silently skipping content.
func decodeSSE(ctx context.Context, body io.Reader, callback FragmentCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeTransport, Message: "stream cancelled", Cause: ctx.Err()}
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			var ce *ClientError
			if errors.As(err, &ce) {
				return err
			}
			return &ClientError{Type: ErrTypeTransport, Message: "stream aborted", Cause: err}
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk sseChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return &ClientError{Type: ErrTypeProtocol, Message: "malformed stream event", Cause: err}
		}

		// Heartbeat chunks with no content still flow through; the
		// consumer ignores empty deltas.
		callback(Fragment{Kind: FragmentTextDelta, Text: chunk.content()})

		if chunk.done() {
			return nil
		}
	}
}

// =============================================================================
// RAW DECODING
// =============================================================================

// rawReadSize is the buffer size for raw-form reads. Each successful read
// becomes one fragment, so fragment granularity follows the sender's
// write/flush pattern.
const rawReadSize = 4096

// decodeRaw reads the plain-text body and emits each received chunk as a
// text-delta fragment. EOF ends the stream cleanly.
func decodeRaw(ctx context.Context, body io.Reader, callback FragmentCallback) error {
	buf := make([]byte, rawReadSize)

	for {
		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeTransport, Message: "stream cancelled", Cause: ctx.Err()}
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			callback(Fragment{Kind: FragmentTextDelta, Text: string(buf[:n])})
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &ClientError{Type: ErrTypeTransport, Message: "stream aborted", Cause: err}
		}
	}
}
