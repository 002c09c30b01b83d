package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// entryCache is a TTL-based in-memory cache with stale-while-revalidate for
// query lookups against remote stores. Uses sync.Map for lock-free reads on
// the hot path.
type entryCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	entry      *Entry // nil = negative cache (command not registered)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// cacheGetResult holds the result of a cache lookup.
type cacheGetResult struct {
	entry        *Entry
	hit          bool // a value was found, fresh or stale
	needsRefresh bool // expired — caller should refresh in background
}

func newEntryCache(ttl time.Duration) *entryCache {
	return &entryCache{ttl: ttl}
}

// get performs a non-blocking lookup. Stale entries come back with
// needsRefresh set for exactly one caller (CAS-gated).
func (c *entryCache) get(key string) cacheGetResult {
	val, ok := c.store.Load(key)
	if !ok {
		return cacheGetResult{}
	}

	ce := val.(*cacheEntry)
	if time.Now().Before(ce.expiresAt) {
		return cacheGetResult{entry: ce.entry, hit: true}
	}

	needsRefresh := ce.refreshing.CompareAndSwap(false, true)
	return cacheGetResult{entry: ce.entry, hit: true, needsRefresh: needsRefresh}
}

// set stores an entry with a fresh TTL. nil stores a negative entry.
func (c *entryCache) set(key string, entry *Entry) {
	c.store.Store(key, &cacheEntry{
		entry:     entry,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// invalidate drops a key, forcing the next lookup to hit the store.
func (c *entryCache) invalidate(key string) {
	c.store.Delete(key)
}
