// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package scorer defines the relevance scorer consumed by the retriever and
// the text conventions shared with the trained scoring model.
package scorer

import (
	"context"
	"strings"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Text markers the scoring model was trained with.
const (
	QueryPrefix    = "query: "
	RelationPrefix = "relation: "
	Separator      = " [SEP] "
)

// Scorer rates how relevant a relation is to a query context. Higher is more
// relevant. Implementations must be safe for concurrent use and are assumed
// deterministic for fixed model weights.
type Scorer interface {
	Score(ctx context.Context, query, relation string) (float64, error)
}

// BatchScorer scores many relations against one query in a single call.
// Semantics remain per pair: scores[i] belongs to relations[i].
type BatchScorer interface {
	Scorer
	ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error)
}

// Func adapts a function to Scorer.
type Func func(ctx context.Context, query, relation string) (float64, error)

func (f Func) Score(ctx context.Context, query, relation string) (float64, error) {
	return f(ctx, query, relation)
}

// Result is the outcome for one relation.
type Result struct {
	Score float64
	Err   error
}

// ScoreAll scores every relation against query. A batch-capable scorer is
// tried first; if the batch fails, each pair is retried alone so one bad
// relation cannot sink its siblings.
func ScoreAll(ctx context.Context, s Scorer, query string, relations []string) []Result {
	out := make([]Result, len(relations))
	if len(relations) == 0 {
		return out
	}

	if bs, ok := s.(BatchScorer); ok {
		scores, err := bs.ScoreBatch(ctx, query, relations)
		if err == nil && len(scores) == len(relations) {
			for i, v := range scores {
				out[i] = Result{Score: v}
			}
			return out
		}
	}

	for i, rel := range relations {
		if err := ctx.Err(); err != nil {
			out[i] = Result{Err: err}
			continue
		}
		v, err := s.Score(ctx, query, rel)
		if err != nil && sigilerr.CodeOf(err) == "" && ctx.Err() == nil {
			err = sigilerr.Wrap(err, sigilerr.CodeScorerUpstreamFailure, "scoring relation", sigilerr.FieldRelation(rel))
		}
		out[i] = Result{Score: v, Err: err}
	}
	return out
}

// QueryContext is the question followed by the path walked so far, in the
// format of the training examples' query field.
func QueryContext(question string, path kg.Path) string {
	return strings.TrimSpace(question) + Separator + path.Text()
}

// ModelQuery and ModelRelation add the prefixes the model expects.
func ModelQuery(query string) string       { return QueryPrefix + query }
func ModelRelation(relation string) string { return RelationPrefix + relation }

// Static scores from a table keyed by relation text; unknown relations get
// Default. It ignores the query.
type Static struct {
	Scores  map[string]float64
	Default float64
}

var _ BatchScorer = Static{}

func (s Static) Score(_ context.Context, _, relation string) (float64, error) {
	if v, ok := s.Scores[relation]; ok {
		return v, nil
	}
	return s.Default, nil
}

func (s Static) ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error) {
	out := make([]float64, len(relations))
	for i, r := range relations {
		out[i], _ = s.Score(ctx, query, r)
	}
	return out, nil
}
