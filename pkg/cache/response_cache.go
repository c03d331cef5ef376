// Package cache provides content-addressable TTL memoization of computed
// detection results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the cache when no explicit capacity is given.
const DefaultMaxEntries = 4096

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// ResponseCache memoizes computed payloads under content-derived keys.
// Expiry is lazy: an expired entry is removed on the Get that observes it,
// and a caller never sees a payload past its deadline. The store is
// capacity-bounded; at capacity the entry closest to expiry is evicted.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time // test hook
}

// New builds a cache with the given TTL and capacity. maxEntries <= 0 uses
// DefaultMaxEntries.
func New(ttl time.Duration, maxEntries int) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &ResponseCache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key derives the cache key for a request. The JSON body is canonicalized
// (decoded and re-marshaled, which sorts object keys) so logically identical
// requests with reordered fields share a key; non-JSON bodies are hashed
// as raw bytes.
func Key(route, userID string, body []byte) string {
	canonical := body
	if len(body) > 0 {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			if b, err := json.Marshal(v); err == nil {
				canonical = b
			}
		}
	}
	h := sha256.New()
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the payload stored under key, or miss. An entry at
// or past its deadline is deleted and reported as a miss exactly once.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Set stores a copy of payload under key with the configured TTL.
func (c *ResponseCache) Set(key string, payload []byte) {
	now := c.now()
	cp := make([]byte, len(payload))
	copy(cp, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.entries[key] = &entry{payload: cp, expiresAt: now.Add(c.ttl)}
}

// Len reports the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *ResponseCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expiresAt.Before(soonest) {
			victim, soonest, first = k, e.expiresAt, false
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}
