// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package lru is a small thread-safe LRU cache with optional expiry.
package lru

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
}

// Cache evicts the least recently used entry once it holds more than size
// entries. A zero ttl keeps entries until evicted.
type Cache[V any] struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	items map[string]*list.Element
	order *list.List
	now   func() time.Time

	hits, misses uint64
}

// New returns a cache holding at most size entries. size <= 0 means 1024.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 1024
	}
	return &Cache[V]{
		size:  size,
		ttl:   ttl,
		items: make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
}

// Get returns the value for key and marks it as recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[V])
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.remove(el)
		c.misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expires = expires
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expires: expires})
	for len(c.items) > c.size {
		c.remove(c.order.Back())
	}
}

// Len returns the number of live entries, expired ones included until touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache[V]) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
