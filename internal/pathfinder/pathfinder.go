// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pathfinder finds every shortest relation path between question
// entities and answer entities with a layered bidirectional BFS over the
// graph gateway.
package pathfinder

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Status values reported in Result.
const (
	StatusOK     = "ok"
	StatusNoPath = "no_path"
)

// DefaultMaxPaths caps the paths returned per search.
const DefaultMaxPaths = 100

var tracer = otel.Tracer("github.com/sigil-dev/srtk/internal/pathfinder")

// Config holds search limits.
type Config struct {
	MaxDepth    int          `mapstructure:"max_depth"`
	Direction   kg.Direction `mapstructure:"direction"`
	MaxFrontier int          `mapstructure:"frontier_cap"`
	MaxPaths    int          `mapstructure:"max_paths"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxDepth: 2, Direction: kg.Both, MaxFrontier: 10000, MaxPaths: DefaultMaxPaths}
}

// Validate returns every configuration problem found, or nil.
func (c Config) Validate() []error {
	var errs []error
	if c.MaxDepth <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodePathfinderConfigInvalid,
			"paths.max_depth must be positive, got %d", c.MaxDepth))
	}
	if _, err := kg.ParseDirection(string(c.Direction)); err != nil {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodePathfinderConfigInvalid,
			"paths.direction: unknown value %q", c.Direction))
	}
	if c.MaxFrontier < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodePathfinderConfigInvalid,
			"paths.frontier_cap cannot be negative, got %d", c.MaxFrontier))
	}
	if c.MaxPaths < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodePathfinderConfigInvalid,
			"paths.max_paths cannot be negative, got %d", c.MaxPaths))
	}
	return errs
}

// Observer receives one notification per finished search.
type Observer interface {
	ObservePathSearch(status string, paths int)
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithObserver reports every finished search to o.
func WithObserver(o Observer) Option {
	return func(f *Finder) { f.observer = o }
}

// Finder runs path searches. Safe for concurrent use.
type Finder struct {
	gw       kg.Gateway
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

// New validates cfg and returns a Finder.
func New(gw kg.Gateway, cfg Config, opts ...Option) (*Finder, error) {
	if gw == nil {
		return nil, sigilerr.New(sigilerr.CodePathfinderConfigInvalid, "pathfinder: gateway is required")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	cfg.Direction, _ = kg.ParseDirection(string(cfg.Direction))
	if cfg.MaxPaths == 0 {
		cfg.MaxPaths = DefaultMaxPaths
	}
	f := &Finder{gw: gw, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the effective configuration.
func (f *Finder) Config() Config { return f.cfg }

// ConnectingPath walks from Source to Target. Entities lists every entity
// on the way, both ends included, so len(Entities) == len(Steps)+1.
type ConnectingPath struct {
	Source   kg.Entity   `json:"source"`
	Target   kg.Entity   `json:"target"`
	Steps    kg.Path     `json:"steps"`
	Entities []kg.Entity `json:"entities"`
}

// Result is the outcome of a search.
type Result struct {
	Paths  []ConnectingPath `json:"paths"`
	Status string           `json:"status"`
	// Depth is the length of the returned paths, 0 when none were found.
	Depth int `json:"depth"`
	// Partial is set when a side stopped early because of a gateway failure.
	Partial bool `json:"partial,omitempty"`
	// Truncated is set when more than MaxPaths shortest paths existed.
	Truncated bool `json:"truncated,omitempty"`
}

// RelationPath is a step sequence anchored at one source entity, together
// with the targets it was found to reach.
type RelationPath struct {
	Source  kg.Entity    `json:"source"`
	Path    kg.Path      `json:"steps"`
	Targets kg.EntitySet `json:"targets"`
}

// RelationPaths groups the connecting paths by source and step sequence.
func (r *Result) RelationPaths() []RelationPath {
	index := make(map[string]int)
	var out []RelationPath
	for _, p := range r.Paths {
		key := string(p.Source) + "\x00" + p.Steps.Key()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, RelationPath{Source: p.Source, Path: p.Steps})
		}
		out[i].Targets = out[i].Targets.Union(kg.NewEntitySet(p.Target))
	}
	slices.SortFunc(out, func(a, b RelationPath) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return kg.ComparePaths(a.Path, b.Path)
	})
	return out
}

// link is one recorded predecessor. On the source side it reads
// "entity was reached from via step"; on the target side "entity reaches
// via via step". step is always oriented as walked from the source side.
type link struct {
	via  kg.Entity
	step kg.Step
}

func compareLinks(a, b link) int {
	if c := cmp.Compare(a.via, b.via); c != 0 {
		return c
	}
	return kg.CompareSteps(a.step, b.step)
}

func compactLinks(links []link) []link {
	slices.SortFunc(links, compareLinks)
	return slices.CompactFunc(links, func(a, b link) bool { return compareLinks(a, b) == 0 })
}

// arrival records how a side first walked into one of its own start entities
// that also belongs to the opposite start set.
type arrival struct {
	depth int
	links []link
}

// side is the BFS state of one direction. It is owned by a single goroutine
// during a round.
type side struct {
	name     string
	reverse  bool
	depth    map[kg.Entity]int
	links    map[kg.Entity][]link
	frontier kg.EntitySet
	level    int
	done     bool
	failed   bool

	// opposite is the other side's start set. It is never modified.
	opposite kg.EntitySet
	arrivals map[kg.Entity]arrival
}

func newSide(name string, reverse bool, start, opposite kg.EntitySet) *side {
	s := &side{
		name:     name,
		reverse:  reverse,
		depth:    make(map[kg.Entity]int, start.Len()),
		links:    make(map[kg.Entity][]link),
		frontier: start,
		opposite: opposite,
		arrivals: make(map[kg.Entity]arrival),
	}
	for _, e := range start {
		s.depth[e] = 0
	}
	return s
}

// Find searches for every shortest path from sources to targets. No path
// within MaxDepth is reported as StatusNoPath with a nil error. Only
// request validation and context errors are returned.
func (f *Finder) Find(ctx context.Context, sources, targets []kg.Entity) (*Result, error) {
	src, dst := kg.NewEntitySet(sources...), kg.NewEntitySet(targets...)
	if src.Len() == 0 || dst.Len() == 0 {
		return nil, sigilerr.New(sigilerr.CodePathfinderRequestInvalid,
			"pathfinder: source and target entities are required")
	}

	ctx, span := tracer.Start(ctx, "pathfinder.Find", trace.WithAttributes(
		attribute.Int("pathfinder.sources", src.Len()),
		attribute.Int("pathfinder.targets", dst.Len()),
		attribute.Int("pathfinder.max_depth", f.cfg.MaxDepth),
	))
	defer span.End()

	fwd := newSide("source", false, src, dst)
	bwd := newSide("target", true, dst, src)
	res := &Result{Status: StatusNoPath, Paths: []ConnectingPath{}}

	var runErr error
	for round := 1; ; round++ {
		remaining := f.cfg.MaxDepth - fwd.level - bwd.level
		if remaining <= 0 || fwd.done || bwd.done {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		active := []*side{fwd}
		switch {
		case remaining >= 2:
			active = append(active, bwd)
		case bwd.frontier.Len() < fwd.frontier.Len():
			active = []*side{bwd}
		}
		if err := f.round(ctx, round, active); err != nil {
			runErr = err
			break
		}
		res.Partial = fwd.failed || bwd.failed

		if paths, depth, truncated := f.meet(fwd, bwd); len(paths) > 0 {
			res.Paths, res.Depth, res.Truncated, res.Status = paths, depth, truncated, StatusOK
			break
		}
	}

	span.SetAttributes(
		attribute.String("pathfinder.status", res.Status),
		attribute.Int("pathfinder.paths", len(res.Paths)),
	)
	if f.observer != nil {
		f.observer.ObservePathSearch(res.Status, len(res.Paths))
	}
	return res, runErr
}

// round expands the active sides concurrently and waits for all of them.
func (f *Finder) round(ctx context.Context, round int, active []*side) error {
	ctx, span := tracer.Start(ctx, "pathfinder.round", trace.WithAttributes(
		attribute.Int("pathfinder.round", round),
		attribute.Int("pathfinder.sides", len(active)),
	))
	defer span.End()

	var g errgroup.Group
	for _, s := range active {
		g.Go(func() error {
			f.expand(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// expand advances s by one BFS layer.
func (f *Finder) expand(ctx context.Context, s *side) {
	dir := f.cfg.Direction
	query := dir
	if s.reverse {
		query = dir.Reverse()
	}

	edges, err := f.gw.Neighbors(ctx, s.frontier, query)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("path search side failed", "side", s.name, "depth", s.level, "error", err)
			s.failed = true
		}
		s.done = true
		return
	}

	next := s.level + 1
	found := make(map[kg.Entity][]link)
	arrived := make(map[kg.Entity][]link)
	record := func(reached, via kg.Entity, step kg.Step) {
		d, seen := s.depth[reached]
		if !seen || d == next {
			found[reached] = append(found[reached], link{via: via, step: step})
			return
		}
		// A start entity shared with the other side is still a meeting
		// point for paths coming from the rest of this side's seeds.
		if d == 0 && s.opposite.Contains(reached) {
			if _, done := s.arrivals[reached]; !done {
				arrived[reached] = append(arrived[reached], link{via: via, step: step})
			}
		}
	}

	for _, e := range edges {
		forward := kg.Step{Relation: e.Relation, Direction: kg.Forward}
		backward := kg.Step{Relation: e.Relation, Direction: kg.Backward}
		if !s.reverse {
			if dir.Includes(kg.Forward) && s.frontier.Contains(e.Source) {
				record(e.Target, e.Source, forward)
			}
			if dir.Includes(kg.Backward) && s.frontier.Contains(e.Target) {
				record(e.Source, e.Target, backward)
			}
			continue
		}
		// Target side: find entities that reach the frontier in one step.
		if dir.Includes(kg.Forward) && s.frontier.Contains(e.Target) {
			record(e.Source, e.Target, forward)
		}
		if dir.Includes(kg.Backward) && s.frontier.Contains(e.Source) {
			record(e.Target, e.Source, backward)
		}
	}

	reached := make([]kg.Entity, 0, len(found))
	for e := range found {
		reached = append(reached, e)
	}
	layer := kg.NewEntitySet(reached...)
	if err := kg.CheckFrontier(layer, f.cfg.MaxFrontier); err != nil {
		f.logger.Debug("path search side stopped", "side", s.name, "depth", next,
			"frontier", layer.Len(), "reason", err)
		s.done = true
		return
	}

	for e, links := range found {
		s.depth[e] = next
		s.links[e] = compactLinks(links)
	}
	for e, links := range arrived {
		s.arrivals[e] = arrival{depth: next, links: compactLinks(links)}
	}
	s.frontier = layer
	s.level = next
}

// chain is a partial path: consecutive entities and the steps between them.
type chain struct {
	entities []kg.Entity
	steps    kg.Path
}

// meeting is an entity where a source chain and a target chain join.
// arrival names the side whose arrival links lead into a shared start
// entity, nil for an entity both sides reached through their BFS layers.
type meeting struct {
	entity  kg.Entity
	arrival *side
}

func (m meeting) rank(fwd *side) int {
	switch m.arrival {
	case nil:
		return 0
	case fwd:
		return 1
	}
	return 2
}

// meet returns every shortest path through the entities both sides have
// reached, deduplicated, sorted and capped at MaxPaths.
func (f *Finder) meet(fwd, bwd *side) ([]ConnectingPath, int, bool) {
	best := -1
	var meetings []meeting
	consider := func(m meeting, total int) {
		switch {
		case total == 0:
		case best < 0 || total < best:
			best, meetings = total, []meeting{m}
		case total == best:
			meetings = append(meetings, m)
		}
	}
	for e, fd := range fwd.depth {
		if bd, ok := bwd.depth[e]; ok {
			consider(meeting{entity: e}, fd+bd)
		}
	}
	for _, s := range []*side{fwd, bwd} {
		for e, a := range s.arrivals {
			consider(meeting{entity: e, arrival: s}, a.depth)
		}
	}
	if best < 0 {
		return nil, 0, false
	}
	slices.SortFunc(meetings, func(a, b meeting) int {
		if c := cmp.Compare(a.entity, b.entity); c != 0 {
			return c
		}
		return cmp.Compare(a.rank(fwd), b.rank(fwd))
	})

	seen := make(map[string]struct{})
	var paths []ConnectingPath
	truncated := false
	for _, m := range meetings {
		heads := f.chainsTo(fwd, m.entity)
		if m.arrival == fwd {
			heads = f.extendTo(fwd, m.entity, fwd.arrivals[m.entity].links)
		}
		tails := f.chainsFrom(bwd, m.entity)
		if m.arrival == bwd {
			tails = f.extendFrom(bwd, m.entity, bwd.arrivals[m.entity].links)
		}
		for _, head := range heads {
			for _, tail := range tails {
				p, ok := join(head, tail)
				if !ok {
					continue
				}
				key := pathKey(p)
				if _, dup := seen[key]; dup {
					continue
				}
				if len(paths) == f.cfg.MaxPaths {
					truncated = true
					break
				}
				seen[key] = struct{}{}
				paths = append(paths, p)
			}
		}
	}
	slices.SortFunc(paths, compareConnecting)
	return paths, best, truncated
}

// chainsTo returns every chain from a source entity to e.
func (f *Finder) chainsTo(s *side, e kg.Entity) []chain {
	if s.depth[e] == 0 {
		return []chain{{entities: []kg.Entity{e}}}
	}
	return f.extendTo(s, e, s.links[e])
}

// extendTo returns every chain from a source entity that ends with one of
// links into e.
func (f *Finder) extendTo(s *side, e kg.Entity, links []link) []chain {
	var out []chain
	for _, l := range links {
		for _, c := range f.chainsTo(s, l.via) {
			out = append(out, chain{
				entities: append(slices.Clone(c.entities), e),
				steps:    c.steps.Append(l.step),
			})
		}
	}
	return out
}

// chainsFrom returns every chain from e to a target entity.
func (f *Finder) chainsFrom(s *side, e kg.Entity) []chain {
	if s.depth[e] == 0 {
		return []chain{{entities: []kg.Entity{e}}}
	}
	return f.extendFrom(s, e, s.links[e])
}

func (f *Finder) extendFrom(s *side, e kg.Entity, links []link) []chain {
	var out []chain
	for _, l := range links {
		for _, c := range f.chainsFrom(s, l.via) {
			out = append(out, chain{
				entities: append([]kg.Entity{e}, c.entities...),
				steps:    append(kg.Path{l.step}, c.steps...),
			})
		}
	}
	return out
}

// join concatenates head and tail, which share their meeting entity, and
// rejects paths that visit an entity twice.
func join(head, tail chain) (ConnectingPath, bool) {
	entities := append(slices.Clone(head.entities), tail.entities[1:]...)
	seen := make(map[kg.Entity]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e]; dup {
			return ConnectingPath{}, false
		}
		seen[e] = struct{}{}
	}
	steps := make(kg.Path, 0, len(head.steps)+len(tail.steps))
	steps = append(append(steps, head.steps...), tail.steps...)
	return ConnectingPath{
		Source:   entities[0],
		Target:   entities[len(entities)-1],
		Steps:    steps,
		Entities: entities,
	}, true
}

func pathKey(p ConnectingPath) string {
	k := p.Steps.Key()
	for _, e := range p.Entities {
		k += "\x00" + string(e)
	}
	return k
}

func compareConnecting(a, b ConnectingPath) int {
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	if c := kg.ComparePaths(a.Steps, b.Steps); c != 0 {
		return c
	}
	return slices.Compare(a.Entities, b.Entities)
}
