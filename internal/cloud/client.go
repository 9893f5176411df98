// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming client for the remote chat
// completions endpoint.
package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotConfigured
	ErrTypeTransport
	ErrTypeProtocol
	ErrTypeTimeout
)

// ClientError represents an error from the streaming client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	ErrNotConfigured = &ClientError{Type: ErrTypeNotConfigured, Message: "endpoint API key not configured"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsTransport reports whether err is a transport failure: the request
// failed or the stream aborted mid-flight.
func IsTransport(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeTransport
}

// IsProtocol reports whether err means the endpoint sent a fragment whose
// shape the client does not understand.
func IsProtocol(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeProtocol
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// WireFormat selects how the response stream is decoded.
type WireFormat string

const (
	// WireSSE decodes OpenRouter-style server-sent events with typed
	// deltas and a [DONE] terminator.
	WireSSE WireFormat = "sse"

	// WireRaw decodes an incremental plain-text body where every received
	// chunk is a content delta (the relay server's output).
	WireRaw WireFormat = "raw"
)

const (
	// DefaultBaseURL is the default chat completions endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the model requested when none is configured.
	DefaultModel = "xiaomi/mimo-v2-flash:free"

	// DefaultConnectTimeout bounds establishing the streaming connection.
	// Once connected, the stream itself is bounded only by its context.
	DefaultConnectTimeout = 30 * time.Second
)

// Config holds configuration options for the streaming client.
type Config struct {
	// BaseURL is the endpoint root. For WireSSE this is a chat completions
	// API root (the client appends /chat/completions); for WireRaw it is
	// the relay server root (the client appends /api/chat).
	BaseURL string

	// APIKey authenticates WireSSE requests. WireRaw relays do not require
	// one.
	APIKey string

	// Model is the model identifier sent with each request.
	Model string

	// Wire selects the response decoding.
	Wire WireFormat

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Model:          DefaultModel,
		Wire:           WireSSE,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// newStreamingClient builds an HTTP client for streaming requests. No
// client timeout: stream lifetime is controlled via context. The connect
// timeout bounds only the wait for response headers.
func newStreamingClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: connectTimeout,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// Client streams chat completions from the remote endpoint.
//
// The Client is safe for concurrent use, though the conversation engine
// never runs more than one stream at a time.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a streaming client, filling zero config values with
// defaults.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Wire == "" {
		config.Wire = WireSSE
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	return &Client{
		config:     config,
		httpClient: newStreamingClient(config.ConnectTimeout),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// Wire returns the configured wire format.
func (c *Client) Wire() WireFormat {
	return c.config.Wire
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream POSTs the message history and decodes the response stream,
// invoking the callback per fragment in receipt order. It returns once a
// FragmentEnd or FragmentError has been delivered, or when the context is
// cancelled. The returned error mirrors the FragmentError, so callers may
// use either channel of information.
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, callback FragmentCallback) error {
	switch c.config.Wire {
	case WireRaw:
		return c.streamRaw(ctx, messages, callback)
	default:
		return c.streamSSE(ctx, messages, callback)
	}
}

// streamSSE consumes the structured event stream form.
func (c *Client) streamSSE(ctx context.Context, messages []ChatMessage, callback FragmentCallback) error {
	if c.config.APIKey == "" {
		return ErrNotConfigured
	}

	resp, err := c.open(ctx, c.config.BaseURL+"/chat/completions", messages, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	})
	if err != nil {
		return c.fail(callback, err)
	}
	defer resp.Body.Close()

	err = decodeSSE(ctx, resp.Body, callback)
	if err != nil {
		return c.fail(callback, err)
	}
	callback(Fragment{Kind: FragmentEnd})
	return nil
}

// streamRaw consumes the raw incremental text form.
func (c *Client) streamRaw(ctx context.Context, messages []ChatMessage, callback FragmentCallback) error {
	resp, err := c.open(ctx, c.config.BaseURL+"/api/chat", messages, nil)
	if err != nil {
		return c.fail(callback, err)
	}
	defer resp.Body.Close()

	err = decodeRaw(ctx, resp.Body, callback)
	if err != nil {
		return c.fail(callback, err)
	}
	callback(Fragment{Kind: FragmentEnd})
	return nil
}

// open sends the POST request and validates the response status.
func (c *Client) open(ctx context.Context, url string, messages []ChatMessage, decorate func(*http.Request)) (*http.Response, error) {
	body, err := json.Marshal(ChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeProtocol, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeTransport, Message: "request failed", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := readErrorBody(resp.Body)
		resp.Body.Close()
		return nil, &ClientError{
			Type:    ErrTypeTransport,
			Message: "endpoint returned " + resp.Status + msg,
		}
	}

	return resp, nil
}

// fail delivers the error fragment and returns the error.
func (c *Client) fail(callback FragmentCallback, err error) error {
	callback(Fragment{Kind: FragmentError, Err: err})
	return err
}

// readErrorBody extracts a short upstream error message, if any.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return ": " + payload.Error.Message
	}
	return ""
}
