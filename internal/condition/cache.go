package condition

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dwsmith1983/narrator/internal/clock"
)

type cacheEntry struct {
	result  Result
	expires time.Time
}

// resultCache holds recent verdicts keyed by a hash of the condition and
// the rendered context.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[[32]byte]cacheEntry
}

func newResultCache(ttl time.Duration, c clock.Clock) *resultCache {
	return &resultCache{ttl: ttl, clock: c, entries: make(map[[32]byte]cacheEntry)}
}

func cacheKey(description, rendered string) [32]byte {
	buf := make([]byte, 0, len(description)+len(rendered)+1)
	buf = append(buf, description...)
	buf = append(buf, 0)
	buf = append(buf, rendered...)
	return blake3.Sum256(buf)
}

func (c *resultCache) get(key [32]byte) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

func (c *resultCache) put(key [32]byte, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{result: r, expires: now.Add(c.ttl)}
}
