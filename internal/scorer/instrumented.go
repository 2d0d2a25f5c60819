// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scorer

import (
	"context"
	"time"
)

// Observer receives one notification per scorer call.
type Observer interface {
	ObserveScore(backend string, pairs int, elapsed time.Duration, err error)
}

type instrumented struct {
	inner    Scorer
	backend  string
	observer Observer
}

// Instrumented reports every call on s to observer. Batch support of s is kept.
func Instrumented(s Scorer, backend string, observer Observer) Scorer {
	base := instrumented{inner: s, backend: backend, observer: observer}
	if _, ok := s.(BatchScorer); ok {
		return &instrumentedBatch{base}
	}
	return &base
}

func (i *instrumented) Score(ctx context.Context, query, relation string) (float64, error) {
	start := time.Now()
	v, err := i.inner.Score(ctx, query, relation)
	i.observer.ObserveScore(i.backend, 1, time.Since(start), err)
	return v, err
}

type instrumentedBatch struct {
	instrumented
}

func (i *instrumentedBatch) ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error) {
	start := time.Now()
	v, err := i.inner.(BatchScorer).ScoreBatch(ctx, query, relations)
	i.observer.ObserveScore(i.backend, len(relations), time.Since(start), err)
	return v, err
}
