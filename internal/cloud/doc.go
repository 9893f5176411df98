// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming client for the remote chat
// completions endpoint.
//
// The client speaks two wire forms behind one Fragment abstraction:
//
//   - SSE: OpenRouter-style chat completions, where each "data:" event
//     carries a JSON chunk with a content delta and the stream ends with
//     a [DONE] sentinel.
//   - Raw: an incremental plain-text body (the relay server's output),
//     where every received chunk is a content delta and EOF ends the
//     stream.
//
// Consumers receive FragmentTextDelta, FragmentEnd, and FragmentError
// fragments in receipt order regardless of the wire form in use.
package cloud
