// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imaging normalizes user-selected images into small,
// bounded-dimension payloads suitable for embedding in a chat request.
//
// Compress decodes an arbitrary raster image, scales it so the longer
// edge is at most MaxEdge pixels (aspect ratio preserved), re-encodes it
// as JPEG at a fixed quality, and returns the result as a base64 data
// URI. The fixed quality bounds payload size in practice but is a soft
// bound, not a guaranteed byte ceiling.
//
// The package has no side effects beyond producing the payload: no
// network access, no global state.
package imaging
