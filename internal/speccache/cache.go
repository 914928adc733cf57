// File path: internal/speccache/cache.go
package speccache

import (
	"container/list"
	"sync"

	"github.com/gridline-eng/permitpack/internal/discovery"
)

type lruEntry struct {
	key   string
	value discovery.ValidatedSpec
}

// lruCache keeps recently used cache entries in memory so repeated runs over
// the same BOM avoid the catalog round trip.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	ll       *list.List
}

func newLRUCache(size int) *lruCache {
	if size <= 0 {
		size = 256
	}
	return &lruCache{
		capacity: size,
		items:    make(map[string]*list.Element, size),
		ll:       list.New(),
	}
}

func (c *lruCache) Get(key string) (discovery.ValidatedSpec, bool) {
	if c == nil {
		return discovery.ValidatedSpec{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ll == nil {
		return discovery.ValidatedSpec{}, false
	}
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		if entry, ok := elem.Value.(lruEntry); ok {
			return entry.value, true
		}
	}
	return discovery.ValidatedSpec{}, false
}

func (c *lruCache) Set(key string, value discovery.ValidatedSpec) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ll == nil {
		return
	}
	if elem, ok := c.items[key]; ok {
		elem.Value = lruEntry{key: key, value: value}
		c.ll.MoveToFront(elem)
		return
	}
	elem := c.ll.PushFront(lruEntry{key: key, value: value})
	c.items[key] = elem
	if c.ll.Len() > c.capacity {
		tail := c.ll.Back()
		if tail != nil {
			c.ll.Remove(tail)
			if entry, ok := tail.Value.(lruEntry); ok {
				delete(c.items, entry.key)
			}
		}
	}
}

func (c *lruCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.ll = list.New()
}
