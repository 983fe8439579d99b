package tenants

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SettingsReader is the lookup surface other modules depend on.
type SettingsReader interface {
	GetSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error)
}

// CachedSettings wraps a SettingsReader with a TTL cache keyed by tenant
// ID. Webhook bursts for the same tenant would otherwise re-fetch the
// configuration blob on every delivery. Invalidate must be called when a
// tenant's configuration is updated.
type CachedSettings struct {
	inner SettingsReader
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	settings Settings
	expires  time.Time
}

// NewCachedSettings creates a caching wrapper around a settings reader.
func NewCachedSettings(inner SettingsReader, ttl time.Duration) *CachedSettings {
	return &CachedSettings{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

// GetSettings returns cached settings when fresh, fetching otherwise.
func (c *CachedSettings) GetSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.settings, nil
	}

	settings, err := c.inner.GetSettings(ctx, tenantID)
	if err != nil {
		return Settings{}, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{settings: settings, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return settings, nil
}

// Invalidate drops one tenant's cached settings.
func (c *CachedSettings) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

var _ SettingsReader = (*CachedSettings)(nil)
