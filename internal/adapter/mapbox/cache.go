package mapbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/engine"
	"github.com/couchcryptid/quake-watch/internal/observability"
)

// CachedLabeler wraps a Labeler with an in-memory LRU cache. Positions are
// keyed at three decimals (about 100 m), so small drags reuse the label.
type CachedLabeler struct {
	inner   engine.Labeler
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedLabeler creates a cache decorator around a labeler.
func NewCachedLabeler(inner engine.Labeler, maxEntries int, metrics *observability.Metrics) *CachedLabeler {
	return &CachedLabeler{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Label returns a cached label for p, asking the inner labeler on a miss.
func (c *CachedLabeler) Label(ctx context.Context, p domain.Point) (string, error) {
	key := fmt.Sprintf("%.3f,%.3f", p.Lat, p.Lon)
	if label, ok := c.cache.get(key); ok {
		c.metrics.LabelCache.WithLabelValues("hit").Inc()
		return label, nil
	}
	c.metrics.LabelCache.WithLabelValues("miss").Inc()

	label, err := c.inner.Label(ctx, p)
	if err != nil {
		return "", err
	}
	// Only cache non-empty labels so "not found" answers can be retried.
	if label != "" {
		c.cache.put(key, label)
	}
	return label, nil
}

// lruCache is a thread-safe LRU cache of labels.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value string
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
