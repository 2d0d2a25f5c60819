// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scorer

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/sigil-dev/srtk/internal/lru"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}

// Embedding scores a pair by the cosine similarity of the embedded
// "query: ..." and "relation: ..." texts. Vectors are cached by text, so a
// relation seen under many queries is embedded once.
type Embedding struct {
	embedder Embedder
	vectors  *lru.Cache[[]float64]
}

var _ BatchScorer = (*Embedding)(nil)

// NewEmbedding wraps e, caching up to cacheSize vectors.
func NewEmbedding(e Embedder, cacheSize int) *Embedding {
	return &Embedding{embedder: e, vectors: lru.New[[]float64](cacheSize, 0)}
}

func (s *Embedding) Score(ctx context.Context, query, relation string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{relation})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

func (s *Embedding) ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error) {
	texts := make([]string, 0, len(relations)+1)
	texts = append(texts, ModelQuery(query))
	for _, r := range relations {
		texts = append(texts, ModelRelation(r))
	}

	vecs, err := s.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	q := vecs[0]
	out := make([]float64, len(relations))
	for i := range relations {
		v, err := cosine(q, vecs[i+1])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Embedding) embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	index := make(map[string][]int)
	var missing []string
	for i, t := range texts {
		if v, ok := s.vectors.Get(t); ok {
			out[i] = v
			continue
		}
		if _, seen := index[t]; !seen {
			missing = append(missing, t)
		}
		index[t] = append(index[t], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.embedder.Embed(ctx, missing)
	if err != nil {
		if sigilerr.CodeOf(err) == "" {
			err = sigilerr.Wrap(err, sigilerr.CodeScorerUpstreamFailure, "embedding texts")
		}
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid,
			"embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, t := range missing {
		s.vectors.Set(t, vecs[j])
		for _, i := range index[t] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid,
			"embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return floats.Dot(a, b) / (na * nb), nil
}
