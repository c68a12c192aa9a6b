package collaboration

import (
	"encoding/json"
	"sync"

	"collab-sync/internal/models"
)

// DocumentState is the single shared document: its body and its formatting.
// All access goes through the methods below; each is atomic with respect to
// the others, so readers never observe a half-applied update.
type DocumentState struct {
	mu         sync.RWMutex
	body       json.RawMessage
	formatting models.Formatting
	version    uint64 // bumped by every mutation
}

// DocumentSnapshot is a consistent copy of the document
type DocumentSnapshot struct {
	Body       json.RawMessage   `json:"content"`
	Formatting models.Formatting `json:"formatting"`
	Version    uint64            `json:"-"`
}

// NewDocumentState creates an empty document with default formatting
func NewDocumentState() *DocumentState {
	return &DocumentState{
		body:       models.EmptyContent,
		formatting: models.DefaultFormatting(),
	}
}

// ReplaceBody replaces the whole body (last write wins)
func (d *DocumentState) ReplaceBody(body json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// The stored slice is never mutated in place, only swapped
	d.body = body
	d.version++
}

// MergeFormatting overlays the supplied attributes and returns the merged record
func (d *DocumentState) MergeFormatting(patch models.FormattingPatch) models.Formatting {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.formatting = d.formatting.Apply(patch)
	d.version++
	return d.formatting
}

// Snapshot reads body and formatting as of one instant
func (d *DocumentState) Snapshot() DocumentSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DocumentSnapshot{Body: d.body, Formatting: d.formatting, Version: d.version}
}

// Version counts the mutations applied so far
func (d *DocumentState) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.version
}
