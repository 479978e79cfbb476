package collaboration

import (
	"sort"
	"sync"
	"time"

	"collab-engine/internal/models"
)

// CursorTracker holds the latest cursor of each participant in one session.
// It has its own lock so cursor traffic never waits on document edits.
type CursorTracker struct {
	mu      sync.RWMutex
	cursors map[string]models.CursorPosition // userID -> cursor
}

// NewCursorTracker creates an empty tracker
func NewCursorTracker() *CursorTracker {
	return &CursorTracker{cursors: make(map[string]models.CursorPosition)}
}

// Update stores pos as the user's cursor. Last write wins.
func (t *CursorTracker) Update(pos models.CursorPosition) models.CursorPosition {
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}

	t.mu.Lock()
	t.cursors[pos.UserID] = pos
	t.mu.Unlock()

	return pos
}

// Get returns the user's cursor, if any
func (t *CursorTracker) Get(userID string) (models.CursorPosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.cursors[userID]
	return pos, ok
}

// Remove forgets the user's cursor
func (t *CursorTracker) Remove(userID string) {
	t.mu.Lock()
	delete(t.cursors, userID)
	t.mu.Unlock()
}

// All returns every cursor ordered by user ID
func (t *CursorTracker) All() []models.CursorPosition {
	t.mu.RLock()
	out := make([]models.CursorPosition, 0, len(t.cursors))
	for _, pos := range t.cursors {
		out = append(out, pos)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
