package geocode

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        24 * time.Hour,
		MaxEntries: 1024,
	}
}

type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// Cached remembers successful lookups keyed by the normalised address.
// Failures are never cached.
type Cached struct {
	origin Geocoder
	cache  *expirable.LRU[string, Result]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCached(origin Geocoder, cfg CacheConfig) *Cached {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &Cached{
		origin: origin,
		cache:  expirable.NewLRU[string, Result](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (c *Cached) Geocode(ctx context.Context, address string) (Result, error) {
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if res, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return res, nil
	}
	c.misses.Add(1)
	res, err := c.origin.Geocode(ctx, address)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, res)
	return res, nil
}

func (c *Cached) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
