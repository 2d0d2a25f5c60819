// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/srtk/internal/lru"
)

// Cache stores per-entity neighborhood responses.
type Cache interface {
	GetEdges(ctx context.Context, keys []string) (map[string][]Edge, error)
	SetEdges(ctx context.Context, entries map[string][]Edge) error
}

// CacheKey is the cache key for the neighbors of e in direction dir.
func CacheKey(e Entity, dir Direction) string {
	return "kg:" + string(dir) + ":" + string(e)
}

type cachedGateway struct {
	inner  Gateway
	cache  Cache
	logger *slog.Logger
}

// Cached answers from cache where possible and fetches only the missing
// entities from gw. Responses are split per entity so overlapping frontiers
// share entries. Empty neighborhoods are cached too. Cache failures are
// logged and bypassed.
func Cached(gw Gateway, cache Cache, logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedGateway{inner: gw, cache: cache, logger: logger}
}

func (g *cachedGateway) Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	set := NewEntitySet(entities...)
	keys := make([]string, len(set))
	for i, e := range set {
		keys[i] = CacheKey(e, dir)
	}

	hits, err := g.cache.GetEdges(ctx, keys)
	if err != nil {
		g.logger.Warn("graph cache read failed", "error", err)
		hits = nil
	}

	var out []Edge
	var missing []Entity
	for i, e := range set {
		if edges, ok := hits[keys[i]]; ok {
			out = append(out, edges...)
			continue
		}
		missing = append(missing, e)
	}
	if len(missing) == 0 {
		return UniqueEdges(out), nil
	}

	fetched, err := g.inner.Neighbors(ctx, missing, dir)
	if err != nil {
		return nil, err
	}

	entries := partition(fetched, missing, dir)
	if err := g.cache.SetEdges(ctx, entries); err != nil {
		g.logger.Warn("graph cache write failed", "error", err)
	}

	out = append(out, fetched...)
	return UniqueEdges(out), nil
}

// partition assigns each edge to the requested entities it is incident to.
func partition(edges []Edge, entities []Entity, dir Direction) map[string][]Edge {
	entries := make(map[string][]Edge, len(entities))
	for _, e := range entities {
		entries[CacheKey(e, dir)] = []Edge{}
	}
	set := NewEntitySet(entities...)
	for _, edge := range edges {
		if dir.Includes(Forward) && set.Contains(edge.Source) {
			k := CacheKey(edge.Source, dir)
			entries[k] = append(entries[k], edge)
		}
		if dir.Includes(Backward) && set.Contains(edge.Target) && (edge.Target != edge.Source || dir != Both) {
			k := CacheKey(edge.Target, dir)
			entries[k] = append(entries[k], edge)
		}
	}
	return entries
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	entries *lru.Cache[[]Edge]
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache holds up to size neighborhoods for ttl (0 keeps them until evicted).
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: lru.New[[]Edge](size, ttl)}
}

func (c *MemoryCache) GetEdges(_ context.Context, keys []string) (map[string][]Edge, error) {
	out := make(map[string][]Edge, len(keys))
	for _, k := range keys {
		if edges, ok := c.entries.Get(k); ok {
			out[k] = edges
		}
	}
	return out, nil
}

func (c *MemoryCache) SetEdges(_ context.Context, entries map[string][]Edge) error {
	for k, edges := range entries {
		c.entries.Set(k, edges)
	}
	return nil
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() (hits, misses uint64) {
	return c.entries.Stats()
}
