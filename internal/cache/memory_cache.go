package cache

import (
	"context"
	"sync"
	"time"

	"posdrawer/backend/internal/domain"
)

// MemorySettingsCache is the per-process fallback when Redis is not
// configured. Entries expire lazily on read.
type MemorySettingsCache struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[int64]memoryEntry
}

type memoryEntry struct {
	value     domain.OutletSettings
	expiresAt time.Time
}

func NewMemorySettingsCache() *MemorySettingsCache {
	return &MemorySettingsCache{
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (c *MemorySettingsCache) Get(_ context.Context, outletID int64) (*domain.OutletSettings, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[outletID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, outletID)
		c.mu.Unlock()
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemorySettingsCache) Set(_ context.Context, value *domain.OutletSettings, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	entry := memoryEntry{value: *value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[value.OutletID] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemorySettingsCache) Delete(_ context.Context, outletID int64) error {
	c.mu.Lock()
	delete(c.entries, outletID)
	c.mu.Unlock()
	return nil
}
