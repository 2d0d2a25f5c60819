// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"errors"
	"maps"
	"slices"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Gateway answers neighborhood queries over a triple store.
//
// Neighbors returns every edge incident to any of the given entities in the
// requested direction: forward means the entity is the subject, backward
// means it is the object. Calls are idempotent and side-effect free. The
// order of the returned edges is unspecified.
//
// Transport, timeout and decoding failures are reported as graph query
// errors (see IsGraphQueryError), never as raw transport errors.
type Gateway interface {
	Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error)

func (f GatewayFunc) Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	return f(ctx, entities, dir)
}

var (
	// ErrEmptyFrontier signals an expansion that reached no entity.
	ErrEmptyFrontier = errors.New("kg: empty frontier")
	// ErrFrontierOverflow signals an expansion that exceeded the frontier cap.
	ErrFrontierOverflow = errors.New("kg: frontier exceeds cap")
)

// IsGraphQueryError reports whether err is a recoverable gateway failure.
func IsGraphQueryError(err error) bool {
	return sigilerr.IsGraphQueryError(err)
}

// QueryError wraps a transport failure as a graph query error.
func QueryError(err error, backend, msg string) error {
	if err == nil {
		return nil
	}
	if sigilerr.IsGraphQueryError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sigilerr.Wrap(err, sigilerr.CodeGraphQueryTimeout, msg, sigilerr.FieldBackend(backend))
	}
	return sigilerr.Wrap(err, sigilerr.CodeGraphQueryUpstreamFailure, msg, sigilerr.FieldBackend(backend))
}

// CheckFrontier classifies a freshly traversed frontier. A cap <= 0 disables
// the size check.
func CheckFrontier(frontier EntitySet, limit int) error {
	switch {
	case frontier.Len() == 0:
		return ErrEmptyFrontier
	case limit > 0 && frontier.Len() > limit:
		return ErrFrontierOverflow
	}
	return nil
}

// CandidateSteps returns the distinct steps incident to frontier among edges,
// restricted to dir and ordered by CompareSteps. Edges that do not touch the
// frontier on the walked side are ignored, so gateway over-fetching is safe.
func CandidateSteps(edges []Edge, frontier EntitySet, dir Direction) []Step {
	byKey := make(map[string]Step)
	add := func(s Step) {
		if cur, ok := byKey[s.Key()]; ok {
			if cur.Relation.Label == "" && s.Relation.Label != "" {
				byKey[s.Key()] = s
			}
			return
		}
		byKey[s.Key()] = s
	}

	for _, e := range edges {
		if dir.Includes(Forward) && frontier.Contains(e.Source) {
			add(Step{Relation: e.Relation, Direction: Forward})
		}
		if dir.Includes(Backward) && frontier.Contains(e.Target) {
			add(Step{Relation: e.Relation, Direction: Backward})
		}
	}

	steps := slices.Collect(maps.Values(byKey))
	slices.SortFunc(steps, CompareSteps)
	return steps
}

// Traverse applies step to frontier over edges and returns the reached
// entities together with the edges that instantiate the step.
func Traverse(edges []Edge, frontier EntitySet, step Step) (EntitySet, []Edge) {
	var reached []Entity
	var used []Edge
	for _, e := range edges {
		if e.Relation.ID != step.Relation.ID {
			continue
		}
		switch step.Direction {
		case Forward:
			if frontier.Contains(e.Source) {
				reached = append(reached, e.Target)
				used = append(used, e)
			}
		case Backward:
			if frontier.Contains(e.Target) {
				reached = append(reached, e.Source)
				used = append(used, e)
			}
		}
	}
	return NewEntitySet(reached...), UniqueEdges(used)
}

// Deduce applies path hop by hop from anchor through gw and returns the
// final frontier. A path that runs dry yields the empty set, not an error.
// When limit > 0 and an intermediate frontier outgrows it, ErrFrontierOverflow
// is returned.
func Deduce(ctx context.Context, gw Gateway, anchor EntitySet, path Path, limit int) (EntitySet, error) {
	frontier := anchor
	for _, step := range path {
		if frontier.Len() == 0 {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges, err := gw.Neighbors(ctx, frontier, step.Direction)
		if err != nil {
			return nil, err
		}
		frontier, _ = Traverse(edges, frontier, step)
		if limit > 0 && frontier.Len() > limit {
			return nil, ErrFrontierOverflow
		}
	}
	return frontier, nil
}
