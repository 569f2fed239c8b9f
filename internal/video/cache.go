package video

import (
	"container/list"
	"sync"
)

// packetCache is an LRU map from frame index to encoded frame bytes. It is
// private to the video source and guarded by its own lock so the decode
// workers never contend with the reconcile loop.
type packetCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

type cacheKey struct {
	path  string
	index int
}

type cacheEntry struct {
	key  cacheKey
	data []byte
}

func newPacketCache(capacity int) *packetCache {
	if capacity < 1 {
		capacity = 1
	}
	return &packetCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element, capacity),
	}
}

// Get returns the cached bytes for a frame and refreshes its recency.
func (c *packetCache) Get(path string, index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[cacheKey{path, index}]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

// Put inserts a frame, evicting the least recently used entry when full.
func (c *packetCache) Put(path string, index int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{path, index}
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).data = data
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, data: data})
	for c.order.Len() > c.capacity {
		back := c.order.Back()
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).key)
	}
}

// Purge drops every entry for the given path, e.g. when a new video replaces it.
func (c *packetCache) Purge(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*cacheEntry); e.key.path == path {
			c.order.Remove(el)
			delete(c.entries, e.key)
		}
		el = next
	}
}

// Len returns the number of cached frames.
func (c *packetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
