// ABOUTME: In-memory TTL cache used to short-circuit replayed webhook events
// ABOUTME: Keys are marked only after a durable insert; the database UNIQUE index is the backstop

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers recently seen event keys for a bounded window. It is a
// fast-path filter only: a key evicted early just falls through to the
// database uniqueness constraint, so eviction is never a correctness issue.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
	ttl     time.Duration

	// now is swappable for tests.
	now func() time.Time
}

type entry struct {
	key  string
	seen time.Time
}

// NewCache creates a cache holding at most maxSize keys, each remembered for
// ttl. Zero or negative arguments fall back to sane defaults.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Mark remembers key as seen, refreshing its TTL window if already present.
// Callers must only mark a key once the event behind it is durably stored:
// a marked key suppresses redeliveries for the whole TTL, so marking a
// failed ingest would turn an at-least-once retry into a silent drop.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).seen = now
		c.order.MoveToBack(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, seen: now})
}

// Contains reports whether key is currently remembered, without marking it.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked(c.now())
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked(c.now())
	return len(c.entries)
}

// expireLocked drops entries older than the TTL. Entries are ordered oldest
// first, so expiry stops at the first live entry.
func (c *Cache) expireLocked(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*entry)
		if e.seen.After(cutoff) {
			return
		}
		c.order.Remove(front)
		delete(c.entries, e.key)
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.entries, e.key)
}
