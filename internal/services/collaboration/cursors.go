package collaboration

import (
	"sync"
	"time"

	"collab-sync/internal/models"
)

// CursorTable maps session id to that session's last-known cursor
type CursorTable struct {
	mu      sync.RWMutex
	cursors map[string]models.CursorState
	now     func() time.Time
}

func NewCursorTable() *CursorTable {
	return &CursorTable{
		cursors: make(map[string]models.CursorState),
		now:     time.Now,
	}
}

// Update sets the cursor of id, creating the entry if needed
func (c *CursorTable) Update(id string, position, selectionStart, selectionEnd int) models.CursorState {
	state := models.CursorState{
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
		UpdatedAt:      c.now(),
	}

	c.mu.Lock()
	c.cursors[id] = state
	c.mu.Unlock()

	return state
}

// Move updates the cursor of id only if it already has an entry.
// Entries are created at admission and removed at departure, so a late
// update from a departed session cannot bring its caret back.
func (c *CursorTable) Move(id string, position, selectionStart, selectionEnd int) (models.CursorState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cursors[id]; !ok {
		return models.CursorState{}, false
	}
	state := models.CursorState{
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
		UpdatedAt:      c.now(),
	}
	c.cursors[id] = state
	return state, true
}

// Remove drops the entry of id; absent ids are ignored
func (c *CursorTable) Remove(id string) {
	c.mu.Lock()
	delete(c.cursors, id)
	c.mu.Unlock()
}

// Get returns the cursor of id
func (c *CursorTable) Get(id string) (models.CursorState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.cursors[id]
	return state, ok
}

// SnapshotExcept copies every cursor except the one owned by id
func (c *CursorTable) SnapshotExcept(id string) map[string]models.CursorState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]models.CursorState, len(c.cursors))
	for sid, state := range c.cursors {
		if sid == id {
			continue
		}
		result[sid] = state
	}
	return result
}

func (c *CursorTable) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cursors)
}
