// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retriever extracts a question-specific subgraph by beam search
// over relation paths. Each hop asks the graph gateway for the edges
// around every beam item's frontier, scores the candidate relations against
// the question and the path walked so far, and keeps the K best expansions
// across the whole beam.
package retriever

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Status values reported in Result.
const (
	StatusOK     = "ok"
	StatusNoPath = "no_path"
)

var tracer = otel.Tracer("github.com/sigil-dev/srtk/internal/retriever")

// Observer receives one notification per finished retrieval.
type Observer interface {
	ObserveRetrieval(status string, hops, dropped int)
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver reports every finished retrieval to o.
func WithObserver(o Observer) Option {
	return func(r *Retriever) { r.observer = o }
}

// Retriever runs beam searches. It holds no per-request state and is safe
// for concurrent use.
type Retriever struct {
	gw       kg.Gateway
	scorer   scorer.Scorer
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

// New validates cfg and returns a Retriever.
func New(gw kg.Gateway, s scorer.Scorer, cfg Config, opts ...Option) (*Retriever, error) {
	if gw == nil || s == nil {
		return nil, sigilerr.New(sigilerr.CodeRetrieverConfigInvalid, "retriever: gateway and scorer are required")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	r := &Retriever{gw: gw, scorer: s, cfg: cfg.normalized(), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config { return r.cfg }

// Request is one question to retrieve for.
type Request struct {
	Question string
	Seeds    []kg.Entity
}

// ScoredPath is one beam item: a relation path from its anchor entities,
// the entities it reaches, and its cumulative score.
type ScoredPath struct {
	Anchor   kg.EntitySet `json:"anchor"`
	Path     kg.Path      `json:"steps"`
	Frontier kg.EntitySet `json:"frontier"`
	Score    float64      `json:"score"`
}

// Result is the outcome of a retrieval.
type Result struct {
	// Paths is the final beam, best first.
	Paths []ScoredPath `json:"paths"`
	// Subgraph holds every edge traversed by a selected beam item, sorted.
	Subgraph      []kg.Edge `json:"subgraph_edges"`
	Status        string    `json:"status"`
	HopsCompleted int       `json:"hops_completed"`
	// Dropped counts beam items lost to gateway or scorer failures.
	Dropped int `json:"dropped"`
	// Pruned counts selected expansions discarded as dead ends, hubs or cycles.
	Pruned int `json:"pruned"`
}

// item is an immutable beam entry. visited holds the frontier keys seen
// along the path, anchor included.
type item struct {
	anchor   kg.EntitySet
	path     kg.Path
	frontier kg.EntitySet
	score    float64
	visited  []string
}

type expansion struct {
	parent int
	step   kg.Step
	score  float64
}

// neighborhood is what one beam item contributes to a hop.
type neighborhood struct {
	edges      []kg.Edge
	expansions []expansion
	failed     bool
}

// Retrieve runs the beam search for req. Per-item gateway and scorer
// failures drop that item and never fail the call. If ctx is done between
// hops, the result accumulated so far is returned together with ctx.Err().
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	seeds := kg.NewEntitySet(req.Seeds...)
	if seeds.Len() == 0 {
		return nil, sigilerr.New(sigilerr.CodeRetrieverRequestInvalid, "retriever: at least one seed entity is required")
	}

	ctx, span := tracer.Start(ctx, "retriever.Retrieve", trace.WithAttributes(
		attribute.Int("retriever.seeds", seeds.Len()),
		attribute.Int("retriever.beam_width", r.cfg.BeamWidth),
		attribute.Int("retriever.max_hops", r.cfg.MaxHops),
	))
	defer span.End()

	res := &Result{}
	beam := r.initialBeam(seeds)
	var traversed []kg.Edge

	var runErr error
	for hop := 1; hop <= r.cfg.MaxHops; hop++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		next, edges, err := r.hop(ctx, req.Question, hop, beam, res)
		if err != nil {
			runErr = err
			break
		}
		if len(next) == 0 {
			r.logger.Debug("beam exhausted", "hop", hop)
			break
		}
		beam = next
		traversed = append(traversed, edges...)
		res.HopsCompleted = hop
	}

	r.finish(res, beam, traversed)
	span.SetAttributes(
		attribute.String("retriever.status", res.Status),
		attribute.Int("retriever.hops_completed", res.HopsCompleted),
	)
	if r.observer != nil {
		r.observer.ObserveRetrieval(res.Status, res.HopsCompleted, res.Dropped)
	}
	return res, runErr
}

func (r *Retriever) initialBeam(seeds kg.EntitySet) []item {
	if r.cfg.SeedMode == SeedPerSeed {
		beam := make([]item, 0, seeds.Len())
		for _, s := range seeds {
			one := kg.NewEntitySet(s)
			beam = append(beam, item{anchor: one, frontier: one, visited: []string{one.Key()}})
		}
		return beam
	}
	return []item{{anchor: seeds, frontier: seeds, visited: []string{seeds.Key()}}}
}

func (r *Retriever) finish(res *Result, beam []item, traversed []kg.Edge) {
	if res.HopsCompleted == 0 {
		res.Status = StatusNoPath
		res.Paths = []ScoredPath{}
		res.Subgraph = []kg.Edge{}
		return
	}
	res.Status = StatusOK
	res.Paths = make([]ScoredPath, len(beam))
	for i, it := range beam {
		res.Paths[i] = ScoredPath{Anchor: it.anchor, Path: it.path, Frontier: it.frontier, Score: it.score}
	}
	res.Subgraph = kg.UniqueEdges(traversed)
}

// hop expands every beam item, selects the global top-K expansions and
// materializes them. It returns the next beam and the edges it traversed.
// Only context errors are returned.
func (r *Retriever) hop(ctx context.Context, question string, hop int, beam []item, res *Result) ([]item, []kg.Edge, error) {
	ctx, span := tracer.Start(ctx, "retriever.hop", trace.WithAttributes(
		attribute.Int("retriever.hop", hop),
		attribute.Int("retriever.beam", len(beam)),
	))
	defer span.End()

	hoods := make([]neighborhood, len(beam))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range beam {
		g.Go(func() error {
			hoods[i] = r.expand(ctx, question, hop, i, beam[i])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var all []expansion
	for _, h := range hoods {
		if h.failed {
			res.Dropped++
			continue
		}
		all = append(all, h.expansions...)
	}
	slices.SortFunc(all, func(a, b expansion) int {
		if a.score != b.score {
			return cmp.Compare(b.score, a.score)
		}
		if c := kg.CompareSteps(a.step, b.step); c != 0 {
			return c
		}
		return cmp.Compare(a.parent, b.parent)
	})
	if len(all) > r.cfg.BeamWidth {
		all = all[:r.cfg.BeamWidth]
	}

	next := make([]item, 0, len(all))
	var traversed []kg.Edge
	for _, x := range all {
		parent := beam[x.parent]
		frontier, used := kg.Traverse(hoods[x.parent].edges, parent.frontier, x.step)
		if err := kg.CheckFrontier(frontier, r.cfg.MaxFrontier); err != nil {
			r.logger.Debug("pruning expansion", "hop", hop, "relation", x.step.Key(),
				"frontier", frontier.Len(), "reason", err)
			res.Pruned++
			continue
		}
		key := frontier.Key()
		if slices.Contains(parent.visited, key) {
			r.logger.Debug("pruning cyclic expansion", "hop", hop, "relation", x.step.Key())
			res.Pruned++
			continue
		}
		next = append(next, item{
			anchor:   parent.anchor,
			path:     parent.path.Append(x.step),
			frontier: frontier,
			score:    x.score,
			visited:  append(slices.Clone(parent.visited), key),
		})
		traversed = append(traversed, used...)
	}

	span.SetAttributes(attribute.Int("retriever.survivors", len(next)))
	return next, traversed, nil
}

// expand queries the gateway around one item's frontier and scores every
// candidate step.
func (r *Retriever) expand(ctx context.Context, question string, hop, idx int, it item) neighborhood {
	edges, err := r.gw.Neighbors(ctx, it.frontier, r.cfg.Direction)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("dropping beam item", "hop", hop, "frontier", it.frontier.Len(), "error", err)
		}
		return neighborhood{failed: true}
	}

	steps := kg.CandidateSteps(edges, it.frontier, r.cfg.Direction)
	if len(steps) == 0 {
		return neighborhood{}
	}

	texts := make([]string, len(steps))
	for i, s := range steps {
		texts[i] = s.Text()
	}
	results := scorer.ScoreAll(ctx, r.scorer, scorer.QueryContext(question, it.path), texts)

	weight := r.weight(hop)
	out := neighborhood{edges: edges, expansions: make([]expansion, 0, len(steps))}
	for i, res := range results {
		if res.Err != nil || math.IsNaN(res.Score) {
			r.logger.Debug("skipping unscored candidate", "hop", hop, "relation", steps[i].Key(), "error", res.Err)
			continue
		}
		out.expansions = append(out.expansions, expansion{
			parent: idx,
			step:   steps[i],
			score:  it.score + weight*res.Score,
		})
	}
	if len(out.expansions) == 0 {
		if ctx.Err() == nil {
			r.logger.Warn("dropping beam item: every candidate failed scoring", "hop", hop, "candidates", len(steps))
		}
		return neighborhood{failed: true}
	}
	return out
}

func (r *Retriever) weight(hop int) float64 {
	if r.cfg.ScorePolicy == ScoreDiscounted {
		return math.Pow(r.cfg.Discount, float64(hop-1))
	}
	return 1
}
