// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates user turns against the conversation store.
package engine

import (
	"io"
	"sync"

	"github.com/jeranaias/chatomatic/internal/imaging"
)

// =============================================================================
// PENDING ATTACHMENTS
// =============================================================================

// MaxAttachments caps the pending attachment set. Attachments beyond the
// cap are dropped, earliest-added first retained.
const MaxAttachments = 4

// AddReport describes the outcome of an AddImages call.
type AddReport struct {
	// Added holds the attachments that entered the pending set, in
	// source order.
	Added []imaging.Attachment

	// Rejected holds one error per source that failed to compress, in
	// source order.
	Rejected []error

	// Dropped counts sources that compressed fine but did not fit under
	// the cap.
	Dropped int
}

// Pending is the set of compressed images staged for the next user turn.
// It is safe for concurrent use.
type Pending struct {
	mu          sync.Mutex
	attachments []imaging.Attachment
}

// NewPending creates an empty pending set.
func NewPending() *Pending {
	return &Pending{}
}

// AddImages compresses the sources concurrently and stages the successes,
// preserving source order. Sources that fail to compress are reported and
// skipped; they never consume cap space. Successes beyond the cap are
// dropped, keeping earlier-staged attachments.
func (p *Pending) AddImages(sources []io.Reader) AddReport {
	results := imaging.CompressAll(sources)

	var report AddReport
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range results {
		if r.Err != nil {
			report.Rejected = append(report.Rejected, r.Err)
			continue
		}
		if len(p.attachments) >= MaxAttachments {
			report.Dropped++
			continue
		}
		p.attachments = append(p.attachments, r.Attachment)
		report.Added = append(report.Added, r.Attachment)
	}

	return report
}

// Remove drops the attachment at index. Out-of-range indexes are ignored.
func (p *Pending) Remove(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.attachments) {
		return
	}
	p.attachments = append(p.attachments[:index], p.attachments[index+1:]...)
}

// List returns a copy of the staged attachments in add order.
func (p *Pending) List() []imaging.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]imaging.Attachment, len(p.attachments))
	copy(out, p.attachments)
	return out
}

// Count returns the number of staged attachments.
func (p *Pending) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attachments)
}

// take drains the set, returning what was staged. Called by the
// dispatcher when a turn consumes the attachments.
func (p *Pending) take() []imaging.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.attachments
	p.attachments = nil
	return out
}

// Clear drops all staged attachments.
func (p *Pending) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attachments = nil
}
