package embedder

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/lunai408/local-agent-factory/core"
)

// CachedProvider wraps a Provider with a ristretto cache keyed by content.
// Re-ingesting the same document or re-running the same query never
// recomputes a vector. The cache is an optimization only: a miss falls
// through to the wrapped provider, and provider errors are never cached.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps inner with an embedding cache holding up to
// maxEntries vectors. maxEntries <= 0 selects a default of 10k.
func NewCachedProvider(inner Provider, maxEntries int64) (*CachedProvider, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, or computes and caches it.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.inner.Dimensions() {
		return nil, fmt.Errorf("provider returned %d dims, expected %d: %w",
			len(vec), c.inner.Dimensions(), core.ErrDimensionMismatch)
	}

	// Each entry costs 1; MaxCost is the entry count.
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Dimensions returns the wrapped provider's vector size.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases cache resources.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
