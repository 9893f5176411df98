// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming client for the remote chat
// completions endpoint.
package cloud

// =============================================================================
// FRAGMENT ABSTRACTION
// =============================================================================

// FragmentKind identifies what one unit of the inbound stream carries.
type FragmentKind int

const (
	// FragmentTextDelta carries incremental text content. The text may be
	// empty for keep-alive fragments; consumers must ignore those.
	FragmentTextDelta FragmentKind = iota

	// FragmentEnd marks a cleanly completed stream.
	FragmentEnd

	// FragmentError carries a transport or protocol failure. No further
	// fragments follow it.
	FragmentError
)

// String returns the kind's name for logs and tests.
func (k FragmentKind) String() string {
	switch k {
	case FragmentTextDelta:
		return "text-delta"
	case FragmentEnd:
		return "end"
	case FragmentError:
		return "error"
	default:
		return "unknown"
	}
}

// Fragment is one unit of incremental content delivered by the remote
// endpoint, normalized across wire forms.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}

// FragmentCallback is called for each fragment, synchronously, in the
// order fragments are received. The stream never reorders or buffers.
type FragmentCallback func(Fragment)
