// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the chatomatic relay server.
//
// The relay accepts a full message history and streams the model's reply
// back as raw incremental text, hiding the upstream SSE protocol and the
// API key from clients.
//
// Endpoints:
//   - POST /api/chat - stream a chat reply as plain text chunks
//   - GET  /health   - health check
//   - GET  /stats    - usage statistics
package server
