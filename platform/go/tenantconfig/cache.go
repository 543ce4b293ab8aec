package tenantconfig

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache stores encoded resolution results keyed by client id. Implementations must be safe
// for concurrent use; entries are replaced wholesale, never mutated.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// MemoryCache is the in-process cache used when no shared cache is configured.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache builds an in-process cache that purges expired entries every cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.items.Set(key, stored, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.items.Flush()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
