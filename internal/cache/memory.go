package cache

import (
	"context"
	"sync"
	"time"
)

type node struct {
	key   string
	entry Entry
	prev  *node
	next  *node
}

// InMemoryCache is a process-local Cache bounded to maxEntries keys with
// least-recently-used eviction. Staleness is not checked here; callers
// decide freshness from Entry.Timestamp.
type InMemoryCache struct {
	mu         sync.Mutex
	items      map[string]*node
	head       *node
	tail       *node
	maxEntries int
	now        func() time.Time
}

func NewInMemoryCache(maxEntries int, now func() time.Time) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &InMemoryCache{
		items:      make(map[string]*node, maxEntries),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	c.moveToFront(n)
	return n.entry, true
}

func (c *InMemoryCache) Put(ctx context.Context, key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Timestamp: c.now(), Payload: payload}

	if n, ok := c.items[key]; ok {
		n.entry = e
		c.moveToFront(n)
		return
	}

	n := &node{key: key, entry: e}
	c.items[key] = n
	c.addToFront(n)

	if len(c.items) > c.maxEntries {
		c.evictOldest()
	}
}

func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops every entry whose age is at least maxAge and returns how
// many were removed.
func (c *InMemoryCache) Sweep(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, n := range c.items {
		if now.Sub(n.entry.Timestamp) >= maxAge {
			c.remove(n)
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. onSweep, if
// set, is called after each pass with the number of removed entries.
func (c *InMemoryCache) StartSweeper(ctx context.Context, interval, maxAge time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := c.Sweep(maxAge)
				if onSweep != nil {
					onSweep(removed)
				}
			}
		}
	}()
}

func (c *InMemoryCache) addToFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *InMemoryCache) moveToFront(n *node) {
	if c.head == n {
		return
	}
	c.remove(n)
	c.addToFront(n)
}

func (c *InMemoryCache) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *InMemoryCache) evictOldest() {
	if c.tail == nil {
		return
	}
	oldest := c.tail
	c.remove(oldest)
	delete(c.items, oldest.key)
}
