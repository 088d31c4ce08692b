// Package sitecache caches each owner's public publication list.
package sitecache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matsen/pubsync/internal/reference"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_site_cache_hits_total",
		Help: "Public site list requests served from cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_site_cache_misses_total",
		Help: "Public site list requests that loaded from the store.",
	})
	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_site_cache_invalidations_total",
		Help: "Owner entries evicted after a publication change.",
	})
)

// Defaults used when the configured size or TTL is not positive.
const (
	DefaultSize = 1024
	DefaultTTL  = 10 * time.Minute
)

// Loader reads an owner's publications from the store.
type Loader interface {
	ListByOwner(ctx context.Context, ownerID string, kind reference.SourceKind) ([]reference.Record, error)
}

// Cache is an LRU of public publication lists keyed by owner with a TTL.
//
// Each owner has a generation that Invalidate bumps. A load that started
// before an invalidation is returned to its caller but never cached.
type Cache struct {
	loader Loader
	lru    *expirable.LRU[string, []reference.Record]

	mu  sync.Mutex
	gen map[string]uint64
}

// New creates a Cache holding up to size owners for ttl each.
func New(loader Loader, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		loader: loader,
		lru:    expirable.NewLRU[string, []reference.Record](size, nil, ttl),
		gen:    make(map[string]uint64),
	}
}

// Publications returns the owner's public list, loading it on a miss.
// Callers must not modify the returned slice.
func (c *Cache) Publications(ctx context.Context, ownerID string) ([]reference.Record, error) {
	if recs, ok := c.lru.Get(ownerID); ok {
		cacheHitsTotal.Inc()
		return recs, nil
	}
	cacheMissesTotal.Inc()

	c.mu.Lock()
	start := c.gen[ownerID]
	c.mu.Unlock()

	recs, err := c.loader.ListByOwner(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen[ownerID] == start {
		c.lru.Add(ownerID, recs)
	}
	c.mu.Unlock()
	return recs, nil
}

// Invalidate evicts the owner's cached list and discards any load in flight.
func (c *Cache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[ownerID]++
	if c.lru.Remove(ownerID) {
		invalidationsTotal.Inc()
	}
}

// Len returns the number of cached owners.
func (c *Cache) Len() int {
	return c.lru.Len()
}
