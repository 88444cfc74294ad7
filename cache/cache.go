// Package cache holds recently emitted fingerprints, keyed by site, with a
// TTL after which they are considered stale and no longer returned.
package cache

import (
	"sync"
	"time"

	"github.com/mvaldes/rssi-fingerprinter/capture"
)

type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	fp  *capture.Fingerprint
	exp time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Set records the latest fingerprint for the given site.
func (c *Cache) Set(site string, fp *capture.Fingerprint) {
	e := entry{
		fp:  fp,
		exp: time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[site] = e
}

// Latest returns the most recent fingerprint for the given site, or nil if
// none has been recorded within the TTL.
func (c *Cache) Latest(site string) *capture.Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[site]
	if !ok {
		return nil
	}

	// Present and unexpired
	if time.Now().Before(e.exp) {
		return e.fp
	}

	// Expired
	delete(c.entries, site)
	return nil
}
