// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package supervision derives scorer training data from question/answer
// samples by distant supervision: connecting paths are scored against the
// answers, the best are kept, and every step of a kept path becomes one
// example with its sibling relations as negatives.
package supervision

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Candidate is a relation path to be checked against the answers.
type Candidate struct {
	Anchor kg.EntitySet
	Path   kg.Path
}

// ScoredPath is a candidate with the entities it deduces and its Jaccard
// score against the answers.
type ScoredPath struct {
	Anchor  kg.EntitySet `json:"anchor"`
	Path    kg.Path      `json:"steps"`
	Deduced kg.EntitySet `json:"deduced"`
	Score   float64      `json:"score"`
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets are identical and
// score 1.
func Jaccard(a, b kg.EntitySet) float64 {
	union := a.Union(b).Len()
	if union == 0 {
		return 1
	}
	return float64(a.Intersect(b).Len()) / float64(union)
}

// ScorePaths deduces every candidate through gw and scores it against
// answers. Candidates whose deduction fails, or outgrows limit, are skipped.
// The result is sorted by score, highest first, keeping input order among
// equal scores. Only context errors are returned.
func ScorePaths(ctx context.Context, gw kg.Gateway, candidates []Candidate, answers kg.EntitySet, limit int, logger *slog.Logger) ([]ScoredPath, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]ScoredPath, 0, len(candidates))
	for _, c := range candidates {
		deduced, err := kg.Deduce(ctx, gw, c.Anchor, c.Path, limit)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			if !errors.Is(err, kg.ErrFrontierOverflow) {
				logger.Warn("skipping path: deduction failed", "path", c.Path.Key(), "error", err)
			}
			continue
		}
		out = append(out, ScoredPath{
			Anchor:  c.Anchor,
			Path:    c.Path,
			Deduced: deduced,
			Score:   Jaccard(deduced, answers),
		})
	}
	slices.SortStableFunc(out, func(a, b ScoredPath) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out, nil
}

// Selection names how scored paths become positives.
type Selection string

const (
	// SelectBest keeps every path tied at the highest score.
	SelectBest Selection = "best"
	// SelectAll keeps every path.
	SelectAll Selection = "all"
)

// ParseSelection maps "" to SelectBest.
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case "", SelectBest:
		return SelectBest, nil
	case SelectAll:
		return SelectAll, nil
	}
	return "", sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
		"unknown path selection %q (want best or all)", s)
}

// SelectionPolicy filters scored paths. Paths scoring below MinScore are
// never selected.
type SelectionPolicy struct {
	Mode     Selection
	MinScore float64
}

// SelectPaths applies p to scored, which must be sorted as ScorePaths
// returns it.
func SelectPaths(scored []ScoredPath, p SelectionPolicy) []ScoredPath {
	var kept []ScoredPath
	for _, s := range scored {
		if s.Score >= p.MinScore {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 || p.Mode == SelectAll {
		return kept
	}
	top := kept[0].Score
	n := 0
	for n < len(kept) && kept[n].Score == top {
		n++
	}
	return kept[:n]
}
