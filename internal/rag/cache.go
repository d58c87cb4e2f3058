package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
)

// defaultMemoryCacheEntries bounds a MemoryCache constructed with max <= 0.
const defaultMemoryCacheEntries = 10000

// CacheKey identifies a chunk embedding. Because ContentHash covers the
// chunk text, an edited document never hits a stale entry.
type CacheKey struct {
	// DocumentID is the source document identifier.
	DocumentID string
	// ContentHash is the hex SHA-256 of the chunk text.
	ContentHash string
	// Position is the chunk index within the document.
	Position int
}

// NewCacheKey derives the cache key for c.
func NewCacheKey(c Chunk) CacheKey {
	sum := sha256.Sum256([]byte(c.Text))
	return CacheKey{
		DocumentID:  c.DocumentID,
		ContentHash: hex.EncodeToString(sum[:]),
		Position:    c.Position,
	}
}

// String renders the key in a stable form suitable for hashing into IDs.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s#%d#%s", k.DocumentID, k.Position, k.ContentHash)
}

// MemoryCache is a bounded in-process EmbeddingCache. When full, the oldest
// inserted entry is evicted.
type MemoryCache struct {
	// mu protects entries and order.
	mu sync.Mutex
	// entries maps keys to vectors.
	entries map[CacheKey][]float32
	// order records insertion order for eviction.
	order []CacheKey
	// max is the entry limit.
	max int
}

// NewMemoryCache constructs a MemoryCache holding at most max entries.
func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = defaultMemoryCacheEntries
	}
	return &MemoryCache{
		entries: make(map[CacheKey][]float32),
		max:     max,
	}
}

// Get returns a copy of the cached vector for key.
func (c *MemoryCache) Get(_ context.Context, key CacheKey) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(vec), true, nil
}

// Put stores a copy of vec under key.
func (c *MemoryCache) Put(_ context.Context, key CacheKey, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = slices.Clone(vec)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
