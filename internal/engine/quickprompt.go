// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
package engine

import (
	"errors"
	"sort"
	"sync"
)

// =============================================================================
// QUICK PROMPTS
// =============================================================================

// ErrUnknownPrompt is returned when a quick-prompt name has no entry.
var ErrUnknownPrompt = errors.New("unknown quick prompt")

// PromptSet holds canned prompts addressable by name. The built-in set
// can be extended or overridden from configuration.
type PromptSet struct {
	mu      sync.Mutex
	prompts map[string]string
}

// DefaultPrompts returns the built-in quick prompts.
func DefaultPrompts() *PromptSet {
	return &PromptSet{
		prompts: map[string]string{
			"explain":   "Explain the previous answer in simpler terms.",
			"shorter":   "Give a shorter version of the previous answer.",
			"continue":  "Continue from where you left off.",
			"translate": "Translate the previous answer into English.",
		},
	}
}

// Resolve returns the prompt text registered under name.
func (ps *PromptSet) Resolve(name string) (string, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	text, ok := ps.prompts[name]
	if !ok {
		return "", ErrUnknownPrompt
	}
	return text, nil
}

// Set registers or replaces a prompt. Empty text removes the entry.
func (ps *PromptSet) Set(name, text string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if text == "" {
		delete(ps.prompts, name)
		return
	}
	ps.prompts[name] = text
}

// Names returns the registered prompt names, sorted.
func (ps *PromptSet) Names() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	names := make([]string, 0, len(ps.prompts))
	for name := range ps.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
