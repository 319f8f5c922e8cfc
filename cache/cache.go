package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL bounds how long a cached feed page may be served after it
// was rendered.
const DefaultTTL = 20 * time.Second

// PageCache holds rendered feed pages for a bounded time window. It is
// shared process-wide; writes do not invalidate it, staleness inside the
// TTL is accepted.
type PageCache struct {
	ttl   time.Duration
	store *gocache.Cache
}

func New(ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PageCache{
		ttl:   ttl,
		store: gocache.New(ttl, ttl),
	}
}

// Get returns the cached page body for key, if still within the TTL.
func (c *PageCache) Get(key string) ([]byte, bool) {
	value, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	body, ok := value.([]byte)
	return body, ok
}

func (c *PageCache) Set(key string, body []byte) {
	c.store.Set(key, body, c.ttl)
}

// Invalidate drops a single cached page. Nothing calls this on the write
// path today; it exists so the staleness tradeoff stays an explicit choice.
func (c *PageCache) Invalidate(key string) {
	c.store.Delete(key)
}

// Flush clears every cached page. Tests call this between scenarios.
func (c *PageCache) Flush() {
	c.store.Flush()
}

func (c *PageCache) TTL() time.Duration {
	return c.ttl
}
