package fare

import (
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Cache is a tiny in-memory cache for quotes keyed by exact coords and tier.
type Cache struct {
	mu        sync.RWMutex
	store     map[cacheKey]cacheEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// cacheKey compares coordinates bit-for-bit; addresses do not affect price.
type cacheKey struct {
	aLat, aLon float64
	bLat, bLon float64
	tier       string
}

type cacheEntry struct {
	q  models.Quote
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[cacheKey]cacheEntry), ttl: ttl, now: time.Now}
}

func keyFor(a, b models.Location, tier string) cacheKey {
	return cacheKey{aLat: a.Latitude, aLon: a.Longitude, bLat: b.Latitude, bLon: b.Longitude, tier: tier}
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Location, tier string) (models.Quote, bool) {
	k := keyFor(a, b, tier)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.Quote{}, false
	}
	if c.expired(e, c.now()) {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.Quote{}, false
	}
	return e.q, true
}

// Set stores q. At most once per TTL it also drops every expired entry, so
// keys that are never read again do not accumulate.
func (c *Cache) Set(a, b models.Location, tier string, q models.Quote) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastSweep) >= c.ttl {
		for k, e := range c.store {
			if c.expired(e, now) {
				delete(c.store, k)
			}
		}
		c.lastSweep = now
	}
	c.store[keyFor(a, b, tier)] = cacheEntry{q: q, ts: now}
}

func (c *Cache) expired(e cacheEntry, now time.Time) bool { return now.Sub(e.ts) > c.ttl }

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
