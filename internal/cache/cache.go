// Package cache implements the process-wide TTL-bounded LRU cache shared
// by every connector Facade, namespaced by (purpose, instanceId, ...) keys
// so unrelated instances never collide.
package cache

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCapacity bounds the number of live entries.
	DefaultCapacity = 10_000
	// DefaultTTL is used when Set is called without an override.
	DefaultTTL = 60 * time.Second
)

type entry struct {
	value      interface{}
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Cache is a bounded LRU with per-entry TTL and prefix-based invalidation.
// It is safe for concurrent use; Get/Set/Delete never block on I/O.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, *entry]
	defaultTTL time.Duration
}

// New creates a Cache with the given capacity and default TTL. A
// non-positive capacity or ttl falls back to the package defaults.
func New(capacity int, defaultTTL time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	backing, _ := lru.New[string, *entry](capacity)
	return &Cache{lru: backing, defaultTTL: defaultTTL}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with a per-entry TTL override.
func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{value: value, insertedAt: time.Now(), ttl: ttl})
}

// Delete removes exactly one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// DeleteByPrefix removes every entry whose key begins with prefix,
// returning the number of entries removed. Used by the Facade to
// invalidate all cache entries affected by a write on
// (instance, objectClass[, uid]).
func (c *Cache) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live (not necessarily unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Key builds a canonical cache key: the JSON encoding of each part,
// joined by "|". The first part is conventionally the purpose tag
// ("schema", "get", ...) and the second the connector instance id.
// Parts that are string slices are sorted and deduplicated first so
// attribute projections that differ only in order or duplicates collide
// on the same key, per the canonical-key discipline.
func Key(parts ...interface{}) string {
	encoded := make([]string, 0, len(parts))
	for _, p := range parts {
		if ss, ok := p.([]string); ok {
			p = canonicalStrings(ss)
		}
		b, err := json.Marshal(p)
		if err != nil {
			b = []byte(`""`)
		}
		encoded = append(encoded, string(b))
	}
	return strings.Join(encoded, "|")
}

// Prefix builds a key prefix from a leading subset of parts, for use with
// DeleteByPrefix. It intentionally omits the trailing "|" so prefix
// matching against full keys that have more parts still works, since every
// part is a self-delimiting JSON encoding.
func Prefix(parts ...interface{}) string {
	return Key(parts...)
}

func canonicalStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
