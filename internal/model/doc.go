// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data model and the observable
// conversation store.
//
// A Conversation is an ordered, append-only sequence of Messages plus a
// Status describing the in-flight request. Each Message is composed of
// typed Parts (text, file attachments, or unrecognized variants kept for
// forward compatibility).
//
// The Store owns the single mutable Conversation. All mutation goes
// through its four operations (Append, MutateLast, SetStatus, Reset),
// each of which is atomic with respect to Snapshot and notifies
// subscribers synchronously after the mutation is applied. The trailing
// message is mutable only while Status is StatusStreaming; moving the
// status away from streaming seals it permanently.
package model
