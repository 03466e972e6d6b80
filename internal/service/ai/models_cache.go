package ai

import (
	"sync"
	"time"
)

type cachedModels struct {
	models   []ModelInfo
	cachedAt time.Time
}

// ModelsCache keeps the model catalog per API key for a TTL.
type ModelsCache struct {
	mu    sync.RWMutex
	items map[string]cachedModels
	ttl   time.Duration
	now   func() time.Time
}

func NewModelsCache(ttl time.Duration) *ModelsCache {
	return &ModelsCache{items: make(map[string]cachedModels), ttl: ttl, now: time.Now}
}

func (c *ModelsCache) Get(key string) []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.items[key]
	if !ok || c.now().Sub(entry.cachedAt) > c.ttl {
		return nil
	}
	return append([]ModelInfo(nil), entry.models...)
}

func (c *ModelsCache) Set(key string, models []ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cachedModels{models: append([]ModelInfo(nil), models...), cachedAt: c.now()}
}
