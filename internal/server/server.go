// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the chatomatic relay server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/chatomatic/internal/cloud"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address for the relay.
	DefaultAddr = "127.0.0.1:8089"

	// MaxRequestBodySize caps the request body (5MB: histories carry
	// embedded image data URIs).
	MaxRequestBodySize = 5 * 1024 * 1024

	// MaxMessageCount caps a single request's history length.
	MaxMessageCount = 200

	// Version is the relay version.
	Version = "0.1.0"
)

// validRoles is the accepted set of message roles.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// validateMessages rejects histories carrying unexpected roles.
func validateMessages(messages []cloud.ChatMessage) error {
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role %q at message %d", msg.Role, i)
		}
	}
	return nil
}

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks relay usage.
type Stats struct {
	TotalRequests int64     `json:"total_requests"`
	StreamedTurns int64     `json:"streamed_turns"`
	FailedTurns   int64     `json:"failed_turns"`
	StartTime     time.Time `json:"start_time"`
}

// statsCounter is the mutable backing for Stats.
type statsCounter struct {
	totalRequests int64
	streamedTurns int64
	failedTurns   int64
	startTime     time.Time
}

func (s *statsCounter) snapshot() Stats {
	return Stats{
		TotalRequests: atomic.LoadInt64(&s.totalRequests),
		StreamedTurns: atomic.LoadInt64(&s.streamedTurns),
		FailedTurns:   atomic.LoadInt64(&s.failedTurns),
		StartTime:     s.startTime,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Upstream streams a reply for a message history. Satisfied by
// *cloud.Client.
type Upstream interface {
	Stream(ctx context.Context, messages []cloud.ChatMessage, callback cloud.FragmentCallback) error
}

// Server is the relay HTTP server.
type Server struct {
	addr     string
	router   *http.ServeMux
	server   *http.Server
	upstream Upstream
	stats    *statsCounter
	logger   *log.Logger

	mu sync.RWMutex
}

// NewServer creates a relay bound to addr, forwarding to upstream. An
// empty addr uses DefaultAddr.
func NewServer(addr string, upstream Upstream) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:     addr,
		router:   http.NewServeMux(),
		upstream: upstream,
		stats:    &statsCounter{startTime: time.Now()},
		logger:   log.New(os.Stderr, "", 0),
	}

	s.setupRoutes()
	return s
}

// WithLogger sets a custom request logger.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the relay's HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger)(s.router)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Start runs the relay until Shutdown or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the relay.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ============================================================================
// CHAT RELAY HANDLER
// ============================================================================

// handleChat streams one reply. The response body is raw incremental
// text: every written chunk is a content delta, and end-of-body is the
// end of the reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.stats.totalRequests, 1)

	var req cloud.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	if len(req.Messages) > MaxMessageCount {
		s.writeError(w, http.StatusBadRequest, "too many messages")
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	started := false
	err := s.upstream.Stream(r.Context(), req.Messages, func(f cloud.Fragment) {
		if f.Kind != cloud.FragmentTextDelta || f.Text == "" {
			return
		}
		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, werr := w.Write([]byte(f.Text)); werr != nil {
			return
		}
		flusher.Flush()
	})

	if err != nil {
		atomic.AddInt64(&s.stats.failedTurns, 1)
		// Once bytes are out the status line is committed; the client
		// sees a truncated body and its own decoder surfaces the error.
		if !started {
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	if !started {
		w.WriteHeader(http.StatusOK)
	}
	atomic.AddInt64(&s.stats.streamedTurns, 1)
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(s.stats.startTime).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.snapshot())
}

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}
