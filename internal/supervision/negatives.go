// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package supervision

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math/rand/v2"
	"slices"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// TrainingExample is one contrastive example for the relation scorer.
// Treat it as immutable once built.
type TrainingExample struct {
	Query     string
	Positive  kg.Step
	Negatives []kg.Step
}

// Key identifies the example by query and positive step.
func (e TrainingExample) Key() string {
	return e.Query + "\x00" + e.Positive.Key()
}

type exampleJSON struct {
	Query         string    `json:"query"`
	Positive      string    `json:"positive"`
	Negatives     []string  `json:"negatives"`
	PositiveStep  kg.Step   `json:"positive_step"`
	NegativeSteps []kg.Step `json:"negative_steps"`
}

// MarshalJSON writes the {"query", "positive", "negatives"} layout the
// trainer reads, plus the structured steps.
func (e TrainingExample) MarshalJSON() ([]byte, error) {
	out := exampleJSON{
		Query:         e.Query,
		Positive:      e.Positive.Text(),
		Negatives:     make([]string, len(e.Negatives)),
		PositiveStep:  e.Positive,
		NegativeSteps: e.Negatives,
	}
	if out.NegativeSteps == nil {
		out.NegativeSteps = []kg.Step{}
	}
	for i, n := range e.Negatives {
		out.Negatives[i] = n.Text()
	}
	return json.Marshal(out)
}

func (e *TrainingExample) UnmarshalJSON(data []byte) error {
	var in exampleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.PositiveStep.Relation.ID == "" {
		return sigilerr.New(sigilerr.CodeDatasetRecordInvalid, "training example without positive_step")
	}
	*e = TrainingExample{Query: in.Query, Positive: in.PositiveStep, Negatives: in.NegativeSteps}
	return nil
}

// NegativeConfig controls sibling sampling. A MaxNegatives of zero keeps
// every sibling.
type NegativeConfig struct {
	Direction    kg.Direction
	MaxNegatives int
	Seed         int64
}

// SampleNegatives walks path from its anchor and emits one example per
// step: the step taken is the positive and every other relation incident to
// the frontier before the step is a negative.
func SampleNegatives(ctx context.Context, gw kg.Gateway, question string, path ScoredPath, cfg NegativeConfig) ([]TrainingExample, error) {
	base, err := kg.ParseDirection(string(cfg.Direction))
	if err != nil {
		return nil, err
	}

	frontier := path.Anchor
	out := make([]TrainingExample, 0, len(path.Path))
	for i, positive := range path.Path {
		if frontier.Len() == 0 {
			break
		}
		dir := base
		if !dir.Includes(positive.Direction) {
			dir = kg.Both
		}
		edges, err := gw.Neighbors(ctx, frontier, dir)
		if err != nil {
			return out, err
		}

		var negatives []kg.Step
		for _, s := range kg.CandidateSteps(edges, frontier, base) {
			if s.Same(positive) {
				if positive.Relation.Label == "" {
					positive.Relation.Label = s.Relation.Label
				}
				continue
			}
			negatives = append(negatives, s)
		}

		query := scorer.QueryContext(question, path.Path[:i])
		out = append(out, TrainingExample{
			Query:     query,
			Positive:  positive,
			Negatives: capNegatives(negatives, cfg, query),
		})
		frontier, _ = kg.Traverse(edges, frontier, positive)
	}
	return out, nil
}

// capNegatives keeps a seeded random subset, re-sorted so output does not
// depend on the shuffle order.
func capNegatives(negatives []kg.Step, cfg NegativeConfig, query string) []kg.Step {
	if cfg.MaxNegatives <= 0 || len(negatives) <= cfg.MaxNegatives {
		return negatives
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(query))
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), h.Sum64()))

	picked := slices.Clone(negatives)
	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	picked = picked[:cfg.MaxNegatives]
	slices.SortFunc(picked, kg.CompareSteps)
	return picked
}
