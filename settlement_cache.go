package x402

import (
	"sync"
	"time"

	"github.com/x402-foundation/x402exact/types"
)

// SettlementStatus represents the result of checking the cache.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight settlement.
	StatusNotFound SettlementStatus = iota
	// StatusCached means the key was settled recently.
	StatusCached
	// StatusInFlight means another request is currently settling this key.
	StatusInFlight
)

// SettlementCache tracks in-flight settlements by nonce key and remembers
// successful ones for ttl, so a concurrent duplicate is refused before it
// reaches the wallet.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]types.SettlementResponse
	expiry   map[string]time.Time
	inFlight map[string]struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewSettlementCache creates a new settlement cache with the specified TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]types.SettlementResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckAndMark atomically checks key and marks it in-flight when it is
// neither cached nor in-flight. Only a StatusNotFound caller may proceed and
// must later call Complete or Fail.
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *types.SettlementResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if c.now().Before(expiry) {
			result := c.results[key]
			return StatusCached, &result
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if _, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil
	}

	c.inFlight[key] = struct{}{}
	return StatusNotFound, nil
}

// Complete caches a successful response and clears the in-flight marker.
func (c *SettlementCache) Complete(key string, response types.SettlementResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = response
	c.expiry[key] = c.now().Add(c.ttl)
	delete(c.inFlight, key)

	c.cleanupExpiredLocked()
}

// Fail clears the in-flight marker without caching, so the key may be retried.
func (c *SettlementCache) Fail(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *SettlementCache) cleanupExpiredLocked() {
	now := c.now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
