// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatomatic.
//
// String helpers are UTF-8 and display-width aware (wide CJK glyphs
// count as two columns). AtomicWriteFile persists files crash-safely.
package util
