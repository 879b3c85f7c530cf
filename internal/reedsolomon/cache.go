package reedsolomon

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies a recovery slice's payload location on disk.
type cacheKey struct {
	vol    string
	offset int64
}

// sliceCache is a small, bounded LRU for recovery slice payloads. A nil
// *sliceCache disables caching entirely (every get misses, every put is a
// no-op), which is what NewEngine wires up when cacheSlices <= 0.
type sliceCache struct {
	inner *lru.Cache[cacheKey, []byte]
}

func newSliceCache(capacity int) *sliceCache {
	if capacity <= 0 {
		return nil
	}

	inner, err := lru.New[cacheKey, []byte](capacity)
	if err != nil {
		// Only returned by lru.New for a non-positive size, already excluded above.
		panic(err)
	}

	return &sliceCache{inner: inner}
}

func (c *sliceCache) get(key cacheKey) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	return c.inner.Get(key)
}

func (c *sliceCache) put(key cacheKey, data []byte) {
	if c == nil {
		return
	}

	c.inner.Add(key, data)
}
