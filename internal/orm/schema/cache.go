package schema

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the accessor cache. Schemas rarely have more than
// a few dozen resources.
const DefaultCacheSize = 64

// AccessorCache memoizes accessor results per resource. Population is
// idempotent, so concurrent callers share one computation per key and a
// recomputation after eviction is merely wasted work.
type AccessorCache struct {
	entries *lru.Cache
	group   singleflight.Group
}

// NewAccessorCache creates a cache holding at most size resources
func NewAccessorCache(size int) (*AccessorCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("accessor cache size must be positive, got %d", size)
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create accessor cache: %w", err)
	}
	return &AccessorCache{entries: entries}, nil
}

// GetOrCompute returns the cached attributes for key, computing and storing
// them on a miss. Errors are not cached.
func (c *AccessorCache) GetOrCompute(key string, compute func() ([]AttributeDescriptor, error)) ([]AttributeDescriptor, error) {
	if v, ok := c.entries.Get(key); ok {
		return v.([]AttributeDescriptor), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		attrs, err := compute()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, attrs)
		return attrs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]AttributeDescriptor), nil
}

// Purge drops every entry. It is the invalidation point for schema reloads.
func (c *AccessorCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached resources
func (c *AccessorCache) Len() int {
	return c.entries.Len()
}
