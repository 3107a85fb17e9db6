package llm

import (
	"sync"
	"time"
)

// DefaultClientTTL bounds how long a cached client is reused before a
// fresh one is built, allowing credential rotation without restart.
const DefaultClientTTL = 30 * time.Minute

// Factory builds a client for a named role.
type Factory func(role string) LLMClient

type cacheEntry struct {
	client    LLMClient
	createdAt time.Time
}

// ClientCache is a process-wide TTL cache of chat clients keyed by role.
// Client construction happens outside the lock so a slow credential
// probe for one role does not block lookups for another.
type ClientCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	factory Factory
	now     func() time.Time
}

// NewClientCache creates a cache with the given TTL and factory.
func NewClientCache(ttl time.Duration, factory Factory) *ClientCache {
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}
	return &ClientCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		factory: factory,
		now:     time.Now,
	}
}

// Get returns a cached client for the role, building one on miss or
// expiry.
func (c *ClientCache) Get(role string) LLMClient {
	c.mu.Lock()
	if e, ok := c.entries[role]; ok && c.now().Sub(e.createdAt) < c.ttl {
		c.mu.Unlock()
		return e.client
	}
	c.mu.Unlock()

	client := c.factory(role)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have raced us here; keep whichever entry is
	// fresh so all callers converge on one client.
	if e, ok := c.entries[role]; ok && c.now().Sub(e.createdAt) < c.ttl {
		return e.client
	}
	c.entries[role] = cacheEntry{client: client, createdAt: c.now()}
	return client
}

// Clear drops every cached client. Invalidation is deliberately global:
// a 401 on one role means the shared credentials are stale everywhere.
func (c *ClientCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
