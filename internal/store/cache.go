package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// docCache keeps recently read or written documents. A nil *docCache is a
// disabled cache that never hits.
type docCache struct {
	lru *expirable.LRU[Key, []byte]
}

// newDocCache returns nil when entries is not positive. A zero ttl keeps
// entries until capacity pushes them out.
func newDocCache(entries int, ttl time.Duration) *docCache {
	if entries <= 0 {
		return nil
	}
	return &docCache{lru: expirable.NewLRU[Key, []byte](entries, nil, ttl)}
}

func (c *docCache) get(k Key) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(k)
}

// has reports a live entry without touching its recency.
func (c *docCache) has(k Key) bool {
	if c == nil {
		return false
	}
	_, ok := c.lru.Peek(k)
	return ok
}

func (c *docCache) put(k Key, data []byte) {
	if c != nil {
		c.lru.Add(k, data)
	}
}

func (c *docCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
