// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scorer

import (
	"context"

	"github.com/sigil-dev/srtk/internal/lru"
)

type memoized struct {
	inner Scorer
	cache *lru.Cache[float64]
}

// Memoize caches successful scores per (query, relation) pair, holding at
// most size pairs. Errors are not cached.
func Memoize(s Scorer, size int) BatchScorer {
	return &memoized{inner: s, cache: lru.New[float64](size, 0)}
}

func pairKey(query, relation string) string {
	return query + "\x00" + relation
}

func (m *memoized) Score(ctx context.Context, query, relation string) (float64, error) {
	key := pairKey(query, relation)
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}
	v, err := m.inner.Score(ctx, query, relation)
	if err != nil {
		return 0, err
	}
	m.cache.Set(key, v)
	return v, nil
}

// ScoreBatch sends only the uncached relations to the inner scorer.
func (m *memoized) ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error) {
	out := make([]float64, len(relations))
	var missIdx []int
	var missRel []string
	for i, rel := range relations {
		if v, ok := m.cache.Get(pairKey(query, rel)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missRel = append(missRel, rel)
	}
	if len(missRel) == 0 {
		return out, nil
	}

	results := ScoreAll(ctx, m.inner, query, missRel)
	for j, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		out[missIdx[j]] = r.Score
		m.cache.Set(pairKey(query, missRel[j]), r.Score)
	}
	return out, nil
}

// Stats returns cache hit and miss counters.
func (m *memoized) Stats() (hits, misses uint64) {
	return m.cache.Stats()
}
