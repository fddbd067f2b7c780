// Package cache provides the bounded TTL+LRU text-to-embedding cache
// used by the LLM mediator. golang-lru/v2 supplies the eviction
// discipline; the TTL layer is hand-added since the library has no
// time-based expiry primitive of its own.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     []float32
	insertedAt time.Time
}

// EmbeddingCache is a thread-safe, bounded, TTL-expiring cache mapping
// raw text to its embedding vector.
type EmbeddingCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, entry]
	ttl   time.Duration
}

// New constructs an EmbeddingCache with the given capacity and TTL.
func New(maxEntries int, ttl time.Duration) (*EmbeddingCache, error) {
	inner, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{inner: inner, ttl: ttl}, nil
}

// Get returns the cached embedding for text if present and not
// expired. A hit refreshes LRU recency; an expired entry is removed
// and reported as a miss. The TTL timestamp is set only by Set, so a
// hit does not extend an entry's lifetime.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(text)
	if !ok {
		return nil, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		c.inner.Remove(text)
		return nil, false
	}
	return e.value, true
}

// Set inserts or refreshes the embedding for text, evicting the least
// recently used entry when at capacity.
func (c *EmbeddingCache) Set(text string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inner.Add(text, entry{value: value, insertedAt: time.Now()})
}

// Len reports the number of entries currently cached, including any
// not yet lazily expired.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
