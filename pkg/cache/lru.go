package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a thread-safe cache bounded by capacity and, optionally,
// by entry age. The least recently used entry is evicted first.
//
// Eviction callbacks run after the lock is released, so they may block
// (for example to drop a remote collection) without stalling readers.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(K, V, EvictReason)

	ll    *list.List
	items map[K]*list.Element
}

var _ Purger = (*LRUCache[string, int])(nil)

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

type eviction[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

// LRUOption configures an LRUCache.
type LRUOption[K comparable, V any] func(*LRUCache[K, V])

// WithTTL expires entries d after they were last set. Zero disables expiry.
func WithTTL[K comparable, V any](d time.Duration) LRUOption[K, V] {
	return func(c *LRUCache[K, V]) { c.ttl = d }
}

// WithOnEvict registers a callback for entries leaving the cache.
func WithOnEvict[K comparable, V any](fn func(K, V, EvictReason)) LRUOption[K, V] {
	return func(c *LRUCache[K, V]) { c.onEvict = fn }
}

// WithClock overrides the time source.
func WithClock[K comparable, V any](now func() time.Time) LRUOption[K, V] {
	return func(c *LRUCache[K, V]) { c.now = now }
}

// NewLRU creates an LRU cache. capacity <= 0 means no size bound.
func NewLRU[K comparable, V any](capacity int, opts ...LRUOption[K, V]) *LRUCache[K, V] {
	c := &LRUCache[K, V]{
		capacity: capacity,
		now:      time.Now,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set adds or updates an item and marks it most recently used. Replacing
// a value does not invoke the eviction callback.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	var evicted []eviction[K, V]

	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry[K, V])
		e.value = value
		e.expiresAt = c.expiry()
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: c.expiry()})
	}

	for c.capacity > 0 && c.ll.Len() > c.capacity {
		evicted = append(evicted, c.removeElement(c.ll.Back(), EvictCapacity))
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// Get returns an unexpired item and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	e := el.Value.(*lruEntry[K, V])
	if c.expired(e) {
		ev := c.removeElement(el, EvictExpired)
		c.mu.Unlock()
		c.notify([]eviction[K, V]{ev})
		var zero V
		return zero, false
	}

	c.ll.MoveToFront(el)
	c.mu.Unlock()
	return e.value, true
}

// Del removes an item from the cache
func (c *LRUCache[K, V]) Del(key K) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	ev := c.removeElement(el, EvictDeleted)
	c.mu.Unlock()

	c.notify([]eviction[K, V]{ev})
}

// Len returns the number of stored items, expired ones included until
// they are touched or purged.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Keys returns keys from most to least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Clear removes all items from the cache
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]eviction[K, V], 0, c.ll.Len())
	for el := c.ll.Back(); el != nil; el = c.ll.Back() {
		evicted = append(evicted, c.removeElement(el, EvictDeleted))
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *LRUCache[K, V]) PurgeExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	var evicted []eviction[K, V]
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*lruEntry[K, V])) {
			evicted = append(evicted, c.removeElement(el, EvictExpired))
		}
		el = prev
	}
	c.mu.Unlock()

	c.notify(evicted)
	return len(evicted)
}

func (c *LRUCache[K, V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *LRUCache[K, V]) expired(e *lruEntry[K, V]) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *LRUCache[K, V]) removeElement(el *list.Element, reason EvictReason) eviction[K, V] {
	e := c.ll.Remove(el).(*lruEntry[K, V])
	delete(c.items, e.key)
	return eviction[K, V]{key: e.key, value: e.value, reason: reason}
}

func (c *LRUCache[K, V]) notify(evicted []eviction[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		c.onEvict(ev.key, ev.value, ev.reason)
	}
}
