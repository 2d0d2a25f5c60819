// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package kg holds the knowledge graph data model and the gateway contract
// consumed by the retriever and the path finder.
package kg

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Entity identifies a graph node.
type Entity string

// EntitySet is a sorted, duplicate-free set of entities. The zero value is
// the empty set. Build one with NewEntitySet; never mutate it in place.
type EntitySet []Entity

// NewEntitySet returns the set of the given entities.
func NewEntitySet(entities ...Entity) EntitySet {
	if len(entities) == 0 {
		return nil
	}
	out := slices.Clone(entities)
	slices.Sort(out)
	return slices.Compact(out)
}

// EntitiesOf converts raw identifiers into a set, dropping blanks.
func EntitiesOf(ids ...string) EntitySet {
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, Entity(id))
		}
	}
	return NewEntitySet(out...)
}

func (s EntitySet) Len() int { return len(s) }

func (s EntitySet) Contains(e Entity) bool {
	_, ok := slices.BinarySearch(s, e)
	return ok
}

func (s EntitySet) Equal(o EntitySet) bool { return slices.Equal(s, o) }

// Union returns s ∪ o.
func (s EntitySet) Union(o EntitySet) EntitySet {
	out := make([]Entity, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	out = append(out, o[j:]...)
	return out
}

// Intersect returns s ∩ o.
func (s EntitySet) Intersect(o EntitySet) EntitySet {
	var out []Entity
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case s[i] > o[j]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Key is a stable fingerprint of the set, usable as a map key.
func (s EntitySet) Key() string {
	var b strings.Builder
	for i, e := range s {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(string(e))
	}
	return b.String()
}

// Strings returns the identifiers in order.
func (s EntitySet) Strings() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = string(e)
	}
	return out
}

// Direction is the traversal direction of a step or a gateway query.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Both     Direction = "both"
)

// ParseDirection accepts forward, backward or both. The empty string means both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Forward, Backward, Both:
		return d, nil
	case "":
		return Both, nil
	default:
		return "", sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"direction must be forward, backward or both, got %q", s)
	}
}

// Reverse swaps forward and backward. Both is its own reverse.
func (d Direction) Reverse() Direction {
	switch d {
	case Forward:
		return Backward
	case Backward:
		return Forward
	default:
		return d
	}
}

// Includes reports whether a query in direction d returns edges walked in step.
func (d Direction) Includes(step Direction) bool {
	return d == Both || d == step
}

// Relation is a predicate with an optional human-readable label.
type Relation struct {
	ID    string
	Label string
}

// Text is the label when one is known, the identifier otherwise.
func (r Relation) Text() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

// Step is one traversal step. Two steps are the same iff relation ID and
// direction match; labels never take part in identity.
type Step struct {
	Relation  Relation
	Direction Direction
}

// Key is the identity of the step.
func (s Step) Key() string { return s.Relation.ID + "|" + string(s.Direction) }

// Same reports step identity.
func (s Step) Same(o Step) bool {
	return s.Relation.ID == o.Relation.ID && s.Direction == o.Direction
}

// Text renders the step for scoring. Backward steps are marked inverse.
func (s Step) Text() string {
	if s.Direction == Backward {
		return s.Relation.Text() + " (inverse)"
	}
	return s.Relation.Text()
}

// Reverse returns the same predicate walked the other way.
func (s Step) Reverse() Step {
	return Step{Relation: s.Relation, Direction: s.Direction.Reverse()}
}

// CompareSteps orders by relation ID, then forward before backward.
func CompareSteps(a, b Step) int {
	if c := cmp.Compare(a.Relation.ID, b.Relation.ID); c != 0 {
		return c
	}
	return cmp.Compare(directionRank(a.Direction), directionRank(b.Direction))
}

func directionRank(d Direction) int {
	switch d {
	case Forward:
		return 0
	case Backward:
		return 1
	default:
		return 2
	}
}

type stepJSON struct {
	Relation  string    `json:"relation"`
	Label     string    `json:"label,omitempty"`
	Direction Direction `json:"direction"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{Relation: s.Relation.ID, Label: s.Relation.Label, Direction: s.Direction})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Relation == "" {
		return sigilerr.New(sigilerr.CodeDatasetRecordInvalid, "step: missing relation")
	}
	dir := raw.Direction
	if dir == "" {
		dir = Forward
	}
	if dir != Forward && dir != Backward {
		return sigilerr.Errorf(sigilerr.CodeDatasetRecordInvalid, "step: direction must be forward or backward, got %q", raw.Direction)
	}
	*s = Step{Relation: Relation{ID: raw.Relation, Label: raw.Label}, Direction: dir}
	return nil
}

// Edge is a stored triple. Direction is a query-time concept.
type Edge struct {
	Source   Entity
	Relation Relation
	Target   Entity
}

func (e Edge) key() string {
	return string(e.Source) + "\x1f" + e.Relation.ID + "\x1f" + string(e.Target)
}

type edgeJSON struct {
	Source   Entity `json:"source"`
	Relation string `json:"relation"`
	Label    string `json:"label,omitempty"`
	Target   Entity `json:"target"`
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{Source: e.Source, Relation: e.Relation.ID, Label: e.Relation.Label, Target: e.Target})
}

func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Edge{Source: raw.Source, Relation: Relation{ID: raw.Relation, Label: raw.Label}, Target: raw.Target}
	return nil
}

// CompareEdges orders by source, relation ID, then target.
func CompareEdges(a, b Edge) int {
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Relation.ID, b.Relation.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Target, b.Target)
}

// UniqueEdges returns edges sorted and deduplicated by triple identity. The
// first non-empty label seen for a triple wins.
func UniqueEdges(edges []Edge) []Edge {
	seen := make(map[string]int, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		k := e.key()
		if i, ok := seen[k]; ok {
			if out[i].Relation.Label == "" {
				out[i].Relation.Label = e.Relation.Label
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, e)
	}
	slices.SortFunc(out, CompareEdges)
	return out
}

// Path is an ordered sequence of steps.
type Path []Step

// Append returns a new path; p is never modified.
func (p Path) Append(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// Key is the identity of the whole step sequence.
func (p Path) Key() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.Key()
	}
	return strings.Join(parts, " ")
}

// Text joins step texts with " # ", the separator the scoring model was trained on.
func (p Path) Text() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.Text()
	}
	return strings.Join(parts, " # ")
}

// Equal reports step-wise identity.
func (p Path) Equal(o Path) bool {
	return slices.EqualFunc(p, o, Step.Same)
}

// ComparePaths orders shorter paths first, then step by step.
func ComparePaths(a, b Path) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	for i := range a {
		if c := CompareSteps(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
