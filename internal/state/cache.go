package state

import (
	"sync"
	"time"

	"github.com/dwrandle/automation-bridge/internal/board"
)

// Cache holds the latest board snapshot and when it was taken.
// Safe for concurrent use. The zero value is empty and ready to use.
type Cache struct {
	mu     sync.RWMutex
	status board.DeviceStatus
	taken  time.Time
	valid  bool
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Update stores a snapshot taken at the given time.
func (c *Cache) Update(status board.DeviceStatus, taken time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status.Clone()
	c.taken = taken
	c.valid = true
}

// Read returns a copy of the cached snapshot, its age, and whether a
// snapshot has ever been stored.
func (c *Cache) Read() (board.DeviceStatus, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return board.DeviceStatus{}, 0, false
	}
	return c.status.Clone(), time.Since(c.taken), true
}

// TakenAt returns when the cached snapshot was stored, zero if none.
func (c *Cache) TakenAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taken
}
