// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"context"
	"strings"
	"sync"
	"time"
)

// responseCache is a thread-safe LRU cache for recommendation responses with
// TTL support. It uses a doubly-linked list for ordering and a hashmap for
// lookups, giving O(1) Get, Add and eviction.
//
// Keys are "<tenant>|<user>|..." so fast-lane writes can invalidate by
// prefix: a new activity for a user drops that user's cached responses, a
// catalog change drops the whole tenant.
type responseCache struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration

	items map[string]*cacheEntry

	// head.next is the most recently used, tail.prev the least.
	head *cacheEntry
	tail *cacheEntry

	hits   int64
	misses int64
}

type cacheEntry struct {
	key       string
	value     *Response
	prev      *cacheEntry
	next      *cacheEntry
	expiresAt time.Time
}

func newResponseCache(capacity int, ttl time.Duration) *responseCache {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &responseCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheEntry, capacity),
		head:     &cacheEntry{},
		tail:     &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached response for key, or nil on miss or expiry.
func (c *responseCache) Get(key string) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil
	}
	if time.Now().After(e.expiresAt) {
		c.unlink(e)
		delete(c.items, key)
		c.misses++
		return nil
	}
	c.moveToFront(e)
	c.hits++
	return e.value
}

// Add stores a response, evicting the least recently used entry when full.
func (c *responseCache) Add(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = resp
		e.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(e)
		return
	}
	if len(c.items) >= c.capacity {
		lru := c.tail.prev
		if lru != c.head {
			c.unlink(lru)
			delete(c.items, lru.key)
		}
	}
	e := &cacheEntry{key: key, value: resp, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = e
	c.insertFront(e)
}

// InvalidatePrefix drops every entry whose key starts with prefix.
func (c *responseCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.unlink(e)
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Stats returns cumulative hit and miss counts.
func (c *responseCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *responseCache) unlink(e *cacheEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *responseCache) insertFront(e *cacheEntry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *responseCache) moveToFront(e *cacheEntry) {
	c.unlink(e)
	c.insertFront(e)
}

// catalogCache holds the per-tenant product catalog for the session builder.
// Entries expire on a short TTL and are dropped eagerly when the catalog
// changes, so a deleted product disappears from rankings immediately.
type catalogCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	tenants map[string]*catalogEntry
}

type catalogEntry struct {
	products  map[string]Product
	expiresAt time.Time
}

func newCatalogCache(ttl time.Duration) *catalogCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &catalogCache{ttl: ttl, tenants: make(map[string]*catalogEntry)}
}

func (c *catalogCache) get(tenant string) (map[string]Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.tenants[tenant]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.products, true
}

func (c *catalogCache) put(tenant string, products map[string]Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenants[tenant] = &catalogEntry{products: products, expiresAt: time.Now().Add(c.ttl)}
}

func (c *catalogCache) invalidate(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tenants, tenant)
}

// catalogFor returns the tenant catalog keyed by id, loading it from storage
// on cache miss.
func (e *Engine) catalogFor(ctx context.Context, tenant string) (map[string]Product, error) {
	if products, ok := e.catalog.get(tenant); ok {
		return products, nil
	}
	list, err := e.store.Products(ctx, tenant)
	if err != nil {
		return nil, err
	}
	products := make(map[string]Product, len(list))
	for _, p := range list {
		products[p.ID] = p
	}
	e.catalog.put(tenant, products)
	return products, nil
}
