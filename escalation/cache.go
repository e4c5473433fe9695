package escalation

import (
	"sync"
	"time"
)

type cacheEntry struct {
	verdict Verdict
	expires time.Time
}

// VerdictCache remembers verdicts per fingerprint for a fixed TTL. Expired
// entries are evicted when read. A nil cache stores nothing.
type VerdictCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewVerdictCache(ttl time.Duration) *VerdictCache {
	if ttl <= 0 {
		return nil
	}
	return &VerdictCache{ttl: ttl, entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *VerdictCache) Get(fingerprint string) (Verdict, bool) {
	if c == nil || fingerprint == "" {
		return VerdictUnknown, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return VerdictUnknown, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, fingerprint)
		return VerdictUnknown, false
	}
	return entry.verdict, true
}

func (c *VerdictCache) Put(fingerprint string, v Verdict) {
	if c == nil || fingerprint == "" {
		return
	}
	c.mu.Lock()
	c.entries[fingerprint] = cacheEntry{verdict: v, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *VerdictCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
