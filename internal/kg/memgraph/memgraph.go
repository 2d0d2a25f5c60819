// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memgraph is an in-process triple store implementing kg.Gateway.
package memgraph

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

func init() {
	kg.RegisterBackend("memory", func(_ context.Context, cfg kg.BackendConfig) (kg.Backend, error) {
		g := New()
		if cfg.Path != "" {
			if err := g.LoadFile(cfg.Path); err != nil {
				return nil, err
			}
		}
		return g, nil
	})
}

// Graph indexes edges by subject and by object.
type Graph struct {
	mu  sync.RWMutex
	out map[kg.Entity][]kg.Edge
	in  map[kg.Entity][]kg.Edge
	set map[kg.Edge]struct{}

	calls atomic.Int64
}

var _ kg.Backend = (*Graph)(nil)

// New returns a graph holding edges.
func New(edges ...kg.Edge) *Graph {
	g := &Graph{
		out: make(map[kg.Entity][]kg.Edge),
		in:  make(map[kg.Entity][]kg.Edge),
		set: make(map[kg.Edge]struct{}),
	}
	g.Add(edges...)
	return g
}

// Add inserts edges; duplicates are ignored.
func (g *Graph) Add(edges ...kg.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		if _, ok := g.set[e]; ok {
			continue
		}
		g.set[e] = struct{}{}
		g.out[e.Source] = append(g.out[e.Source], e)
		g.in[e.Target] = append(g.in[e.Target], e)
	}
}

// Triple is shorthand for an unlabeled edge.
func Triple(source, relation, target string) kg.Edge {
	return kg.Edge{Source: kg.Entity(source), Relation: kg.Relation{ID: relation}, Target: kg.Entity(target)}
}

func (g *Graph) Neighbors(ctx context.Context, entities []kg.Entity, dir kg.Direction) ([]kg.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.calls.Add(1)

	g.mu.RLock()
	defer g.mu.RUnlock()
	var edges []kg.Edge
	for _, e := range kg.NewEntitySet(entities...) {
		if dir.Includes(kg.Forward) {
			edges = append(edges, g.out[e]...)
		}
		if dir.Includes(kg.Backward) {
			edges = append(edges, g.in[e]...)
		}
	}
	return kg.UniqueEdges(edges), nil
}

// Calls returns how many Neighbors queries were served.
func (g *Graph) Calls() int64 { return g.calls.Load() }

// Len returns the number of stored edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.set)
}

// Close is a no-op.
func (g *Graph) Close() error { return nil }

// LoadFile reads triples from path. Files ending in .jsonl hold one edge
// object per line; everything else is tab-separated subject, relation,
// object with an optional fourth relation label column.
func (g *Graph) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeDatasetIOFailure, "opening triples %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var edges []kg.Edge
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		edges, err = ReadJSONL(f)
	} else {
		edges, err = ReadTSV(f)
	}
	if err != nil {
		return err
	}
	g.Add(edges...)
	return nil
}

// ReadTSV parses tab-separated triples. Blank lines and lines starting with
// '#' are skipped.
func ReadTSV(r io.Reader) ([]kg.Edge, error) {
	var edges []kg.Edge
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 3 || cols[0] == "" || cols[1] == "" || cols[2] == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeDatasetRecordInvalid, "triples line %d: want subject, relation, object", line)
		}
		e := Triple(cols[0], cols[1], cols[2])
		if len(cols) > 3 {
			e.Relation.Label = cols[3]
		}
		edges = append(edges, e)
	}
	if err := sc.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeDatasetIOFailure, "reading triples: %w", err)
	}
	return edges, nil
}

// ReadJSONL parses {"source", "relation", "target"} objects, one per line.
func ReadJSONL(r io.Reader) ([]kg.Edge, error) {
	var edges []kg.Edge
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var e kg.Edge
		if err := dec.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeDatasetRecordInvalid, "triples record %d: %w", n, err)
		}
		if e.Source == "" || e.Relation.ID == "" || e.Target == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeDatasetRecordInvalid, "triples record %d: missing field", n)
		}
		edges = append(edges, e)
	}
	return edges, nil
}
