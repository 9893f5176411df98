// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
//
// The Engine owns the turn lifecycle: it collects pending image
// attachments, dispatches at most one streaming request at a time,
// reconciles incoming fragments into the store, and resets everything
// on demand. All state observation happens through the store's
// subscriptions; the engine itself exposes only commands.
package engine
