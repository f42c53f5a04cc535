package pricing

import (
	"sync"
	"time"
)

// cacheEntry is one cached quote with its freshness bookkeeping
type cacheEntry struct {
	Quote        PriceQuote
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int64
	LastAccessed time.Time
}

// expired reports whether the entry's TTL has elapsed
func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CachePolicy governs quote retention
type CachePolicy struct {
	// TTL is the default freshness window
	TTL time.Duration

	// TTLOverrides replaces the TTL per service code
	TTLOverrides map[string]time.Duration

	// MaxEntries bounds the cache; the oldest entry is evicted beyond it
	MaxEntries int
}

// DefaultCachePolicy returns the standard retention policy
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		TTL:        24 * time.Hour,
		MaxEntries: 10000,
	}
}

// Cache holds resolved quotes keyed by (service, region, fingerprint).
// The pricing client is its only writer.
type Cache struct {
	mu      sync.RWMutex
	entries map[PriceKey]*cacheEntry
	policy  CachePolicy

	evictions int64

	now func() time.Time
}

// NewCache creates an empty cache under the given policy
func NewCache(policy CachePolicy) *Cache {
	if policy.TTL <= 0 {
		policy.TTL = DefaultCachePolicy().TTL
	}
	if policy.MaxEntries <= 0 {
		policy.MaxEntries = DefaultCachePolicy().MaxEntries
	}
	return &Cache{
		entries: make(map[PriceKey]*cacheEntry),
		policy:  policy,
		now:     time.Now,
	}
}

// ttlFor returns the freshness window for a service
func (c *Cache) ttlFor(service string) time.Duration {
	if ttl, ok := c.policy.TTLOverrides[service]; ok && ttl > 0 {
		return ttl
	}
	return c.policy.TTL
}

// Get returns a fresh quote for the key, if one exists
func (c *Cache) Get(key PriceKey) (PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(c.now()) {
		return PriceQuote{}, false
	}
	entry.AccessCount++
	entry.LastAccessed = c.now()
	return entry.Quote, true
}

// GetStale returns the quote for the key even when expired, re-tagged
// as Cached. Used only by the offline/degraded policy.
func (c *Cache) GetStale(key PriceKey) (PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return PriceQuote{}, false
	}
	entry.AccessCount++
	entry.LastAccessed = c.now()

	quote := entry.Quote
	if entry.expired(c.now()) {
		quote.Source = SourceCached
	}
	return quote, true
}

// Put stores a quote under its key
func (c *Cache) Put(quote PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[quote.Key] = &cacheEntry{
		Quote:        quote,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttlFor(quote.Key.Service)),
		LastAccessed: now,
	}

	if len(c.entries) > c.policy.MaxEntries {
		c.evictOldest()
	}
}

// evictOldest drops the entry with the earliest creation time.
// Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey PriceKey
	var oldest time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Len returns the number of cached quotes
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
