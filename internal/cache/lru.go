// internal/cache/lru.go
//
// Small LRU with per-entry expiry.  The visitor tracker uses it to
// remember which client IPs were announced recently.  Safe for concurrent
// use; good for a few thousand entries.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a non-generic least-recently-used cache.
// Keys must be comparable; values can be any.
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	ll   *list.List
	dict map[any]*list.Element
}

type entry struct {
	key     any
	val     any
	expires time.Time
}

// New returns an LRU with the given capacity.  ttl <= 0 disables expiry.
// Panics on cap < 1.
func New(capacity int, ttl time.Duration) *LRU {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU{
		cap:  capacity,
		ttl:  ttl,
		now:  time.Now,
		ll:   list.New(),
		dict: make(map[any]*list.Element, capacity),
	}
}

// Get retrieves a live value and marks it MRU.
func (c *LRU) Get(key any) (val any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, hit := c.dict[key]
	if !hit {
		return nil, false
	}
	if c.expired(ele.Value.(*entry)) {
		c.removeElement(ele)
		return nil, false
	}
	c.ll.MoveToFront(ele)
	return ele.Value.(*entry).val, true
}

// Add inserts or updates a value and restarts its TTL.
func (c *LRU) Add(key, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, val)
}

// AddIfAbsent stores val unless a live entry exists.  It reports whether
// val was stored.
func (c *LRU) AddIfAbsent(key, val any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit && !c.expired(ele.Value.(*entry)) {
		return false
	}
	c.addLocked(key, val)
	return true
}

// Len reports current size, expired entries included until touched.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) addLocked(key, val any) {
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	if ele, hit := c.dict[key]; hit {
		ele.Value = &entry{key, val, exp}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(&entry{key, val, exp})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
}

func (c *LRU) expired(e *entry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *LRU) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*entry).key)
}
