// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package supervision

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Sample is one grounded question.
type Sample struct {
	ID               string      `json:"id"`
	Question         string      `json:"question"`
	QuestionEntities []kg.Entity `json:"question_entities"`
	AnswerEntities   []kg.Entity `json:"answer_entities"`
}

// Validate reports whether the sample can be processed.
func (s Sample) Validate() error {
	switch {
	case strings.TrimSpace(s.Question) == "":
		return sigilerr.New(sigilerr.CodeSupervisionInputInvalid, "sample has no question", sigilerr.FieldSampleID(s.ID))
	case len(s.QuestionEntities) == 0:
		return sigilerr.New(sigilerr.CodeSupervisionInputInvalid, "sample has no question entities", sigilerr.FieldSampleID(s.ID))
	case len(s.AnswerEntities) == 0:
		return sigilerr.New(sigilerr.CodeSupervisionInputInvalid, "sample has no answer entities", sigilerr.FieldSampleID(s.ID))
	}
	return nil
}

// Config controls labeling.
type Config struct {
	Selection     Selection    `mapstructure:"selection"`
	MinScore      float64      `mapstructure:"min_score"`
	MaxNegatives  int          `mapstructure:"max_negatives"`
	Seed          int64        `mapstructure:"seed"`
	DiscardNoPath bool         `mapstructure:"discard_no_path"`
	Direction     kg.Direction `mapstructure:"direction"`
	FrontierCap   int          `mapstructure:"frontier_cap"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{Selection: SelectBest, DiscardNoPath: true, Direction: kg.Both, FrontierCap: 10000}
}

// Validate returns every configuration problem found, or nil.
func (c Config) Validate() []error {
	var errs []error
	if _, err := ParseSelection(string(c.Selection)); err != nil {
		errs = append(errs, err)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"labeling.min_score must be in [0, 1], got %g", c.MinScore))
	}
	if c.MaxNegatives < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"labeling.max_negatives cannot be negative, got %d", c.MaxNegatives))
	}
	if _, err := kg.ParseDirection(string(c.Direction)); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Skip reasons reported in Outcome.Reason.
const (
	ReasonNoPath     = "no_path"
	ReasonNoSelected = "no_selected_path"
)

// Outcome is everything derived from one sample.
type Outcome struct {
	Sample   Sample                      `json:"sample"`
	Paths    []pathfinder.ConnectingPath `json:"paths"`
	Scored   []ScoredPath                `json:"scored_paths"`
	Selected []ScoredPath                `json:"selected_paths"`
	Examples []TrainingExample           `json:"examples"`
	Partial  bool                        `json:"partial,omitempty"`
	Skipped  bool                        `json:"skipped,omitempty"`
	Reason   string                      `json:"reason,omitempty"`
}

// Pipeline turns samples into training examples:
// sample → connecting paths → scored paths → selected paths → examples.
type Pipeline struct {
	finder *pathfinder.Finder
	gw     kg.Gateway
	cfg    Config
	logger *slog.Logger
}

// NewPipeline validates cfg.
func NewPipeline(finder *pathfinder.Finder, gw kg.Gateway, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if finder == nil || gw == nil {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "supervision: finder and gateway are required")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	cfg.Selection, _ = ParseSelection(string(cfg.Selection))
	cfg.Direction, _ = kg.ParseDirection(string(cfg.Direction))
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{finder: finder, gw: gw, cfg: cfg, logger: logger}, nil
}

// Candidates turns a path search result into one candidate per source
// entity and step sequence.
func Candidates(res *pathfinder.Result) []Candidate {
	rel := res.RelationPaths()
	out := make([]Candidate, len(rel))
	for i, r := range rel {
		out[i] = Candidate{Anchor: kg.NewEntitySet(r.Source), Path: r.Path}
	}
	return out
}

// Process labels one sample. A sample without a connecting path is returned
// with Skipped set, not as an error.
func (p *Pipeline) Process(ctx context.Context, s Sample) (*Outcome, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := &Outcome{Sample: s}

	found, err := p.finder.Find(ctx, s.QuestionEntities, s.AnswerEntities)
	if err != nil {
		return nil, err
	}
	out.Paths, out.Partial = found.Paths, found.Partial
	if found.Status == pathfinder.StatusNoPath {
		out.Skipped, out.Reason = true, ReasonNoPath
		return out, nil
	}

	answers := kg.NewEntitySet(s.AnswerEntities...)
	out.Scored, err = ScorePaths(ctx, p.gw, Candidates(found), answers, p.cfg.FrontierCap, p.logger)
	if err != nil {
		return nil, err
	}
	out.Selected = SelectPaths(out.Scored, SelectionPolicy{Mode: p.cfg.Selection, MinScore: p.cfg.MinScore})
	if len(out.Selected) == 0 {
		out.Skipped, out.Reason = true, ReasonNoSelected
		return out, nil
	}

	neg := NegativeConfig{Direction: p.cfg.Direction, MaxNegatives: p.cfg.MaxNegatives, Seed: p.cfg.Seed}
	seen := make(map[string]struct{})
	for _, sp := range out.Selected {
		examples, err := SampleNegatives(ctx, p.gw, s.Question, sp, neg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("skipping path: negative sampling failed",
				"sample_id", s.ID, "path", sp.Path.Key(), "error", err)
			continue
		}
		for _, e := range examples {
			if _, dup := seen[e.Key()]; dup {
				continue
			}
			seen[e.Key()] = struct{}{}
			out.Examples = append(out.Examples, e)
		}
	}
	return out, nil
}

// Summary counts batch results.
type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Examples  int `json:"examples"`
}

// ProcessBatch labels samples with up to concurrency workers and calls emit
// for every outcome in input order. Skipped outcomes are emitted only when
// DiscardNoPath is false. Per-sample failures are logged and counted; the
// batch stops on a context error or when emit fails.
func (p *Pipeline) ProcessBatch(ctx context.Context, samples []Sample, concurrency int, emit func(*Outcome) error) (Summary, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]*Outcome, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, s := range samples {
		g.Go(func() error {
			out, err := p.Process(gctx, s)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("sample failed", "sample_id", s.ID, "error", err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	waitErr := g.Wait()

	sum := Summary{Total: len(samples)}
	for _, out := range results {
		switch {
		case out == nil:
			sum.Failed++
			continue
		case out.Skipped:
			sum.Skipped++
			if p.cfg.DiscardNoPath {
				continue
			}
		default:
			sum.Processed++
			sum.Examples += len(out.Examples)
		}
		if err := emit(out); err != nil {
			return sum, err
		}
	}
	if waitErr != nil {
		return sum, waitErr
	}
	return sum, ctx.Err()
}
