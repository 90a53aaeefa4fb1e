// Package cache provides the in-process cache policies used by the
// pipeline cache: an unbounded map and a bounded LRU with optional TTL.
package cache

import (
	"fmt"
	"time"
)

// Policy names accepted by New.
const (
	PolicyUnbounded = "unbounded"
	PolicyLRU       = "lru"
)

// Cache defines the basic interface for a generic cache
type Cache[K comparable, V any] interface {
	// Set adds or updates an item in the cache
	Set(key K, value V)
	// Get retrieves an item from the cache
	Get(key K) (V, bool)
	// Del removes an item from the cache
	Del(key K)
	// Len returns the number of items in the cache
	Len() int
	// Keys returns all keys in the cache
	Keys() []K
	// Clear removes all items from the cache
	Clear()
}

// Purger is implemented by caches whose entries expire. PurgeExpired
// drops every expired entry and returns how many were removed.
type Purger interface {
	PurgeExpired() int
}

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	EvictCapacity EvictReason = iota
	EvictExpired
	EvictDeleted
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Config selects and sizes a cache policy.
type Config struct {
	Policy   string
	Capacity int
	TTL      time.Duration
}

// New builds the cache described by cfg. onEvict may be nil; it is only
// invoked by bounded policies.
func New[K comparable, V any](cfg Config, onEvict func(K, V, EvictReason)) (Cache[K, V], error) {
	switch cfg.Policy {
	case "", PolicyUnbounded:
		return NewMemoryCache[K, V](), nil
	case PolicyLRU:
		if cfg.Capacity <= 0 && cfg.TTL <= 0 {
			return nil, fmt.Errorf("lru cache needs a capacity or a ttl")
		}
		opts := []LRUOption[K, V]{WithTTL[K, V](cfg.TTL)}
		if onEvict != nil {
			opts = append(opts, WithOnEvict(onEvict))
		}
		return NewLRU[K, V](cfg.Capacity, opts...), nil
	default:
		return nil, fmt.Errorf("unknown cache policy %q", cfg.Policy)
	}
}
