package catalog

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kirimku/coverage-analyzer/internal/coverage"
)

// CachedCatalog wraps a slower coverage.PartLookup (SQLiteCatalog,
// RedisCatalog) with an in-process TTL cache, so a claim that repeats
// the same part number across line items -- or a burst of claims
// against the same catalog -- doesn't repeat the round trip.
type CachedCatalog struct {
	inner coverage.PartLookup
	cache *cache.Cache
}

// NewCachedCatalog wraps inner with a cache evicting entries after ttl
// (cleanupInterval controls how often expired entries are purged).
func NewCachedCatalog(inner coverage.PartLookup, ttl, cleanupInterval time.Duration) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: cache.New(ttl, cleanupInterval)}
}

// Lookup implements coverage.PartLookup.
func (c *CachedCatalog) Lookup(itemCode string) (*coverage.PartLookupResult, error) {
	key := normalizePartNumber(itemCode)
	if cached, ok := c.cache.Get(key); ok {
		result := cached.(coverage.PartLookupResult)
		return &result, nil
	}

	result, err := c.inner.Lookup(itemCode)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, *result, cache.DefaultExpiration)
	return result, nil
}
