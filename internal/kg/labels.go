// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// LabelSource resolves relation identifiers to human-readable labels.
// Unknown identifiers are left out of the result.
type LabelSource interface {
	RelationLabels(ctx context.Context, ids []string) (map[string]string, error)
}

// LabelCatalog is a static relation label table.
type LabelCatalog map[string]string

var _ LabelSource = LabelCatalog(nil)

type labelFile struct {
	Relations map[string]string `yaml:"relations"`
}

// ParseLabels reads a catalog of the form
//
//	relations:
//	  P69: educated at
func ParseLabels(data []byte) (LabelCatalog, error) {
	var f labelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeGraphLabelsInvalidFormat, "parsing label catalog: %w", err)
	}
	if f.Relations == nil {
		return LabelCatalog{}, nil
	}
	return LabelCatalog(f.Relations), nil
}

// LoadLabels reads a catalog file.
func LoadLabels(path string) (LabelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading label catalog %s: %w", path, err)
	}
	return ParseLabels(data)
}

func (c LabelCatalog) RelationLabels(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if label, ok := c[id]; ok {
			out[id] = label
		}
	}
	return out, nil
}

// LabelChain consults each source in turn for the identifiers still unknown.
type LabelChain []LabelSource

func (c LabelChain) RelationLabels(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	pending := ids
	for _, src := range c {
		if len(pending) == 0 {
			break
		}
		labels, err := src.RelationLabels(ctx, pending)
		if err != nil {
			return out, err
		}
		next := pending[:0:0]
		for _, id := range pending {
			if label, ok := labels[id]; ok {
				out[id] = label
				continue
			}
			next = append(next, id)
		}
		pending = next
	}
	return out, nil
}

type labeledGateway struct {
	inner  Gateway
	source LabelSource
	logger *slog.Logger

	mu    sync.RWMutex
	known map[string]string // id -> label, "" when the source has none
}

// Labeled fills missing relation labels on edges returned by gw. Lookups are
// memoized for the lifetime of the gateway. Label failures never fail the
// query; the affected relations keep their identifier as text.
func Labeled(gw Gateway, source LabelSource, logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &labeledGateway{inner: gw, source: source, logger: logger, known: make(map[string]string)}
}

func (g *labeledGateway) Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	edges, err := g.inner.Neighbors(ctx, entities, dir)
	if err != nil || len(edges) == 0 {
		return edges, err
	}

	var unknown []string
	seen := make(map[string]bool)
	g.mu.RLock()
	for _, e := range edges {
		if e.Relation.Label != "" || seen[e.Relation.ID] {
			continue
		}
		seen[e.Relation.ID] = true
		if _, ok := g.known[e.Relation.ID]; !ok {
			unknown = append(unknown, e.Relation.ID)
		}
	}
	g.mu.RUnlock()

	if len(unknown) > 0 {
		labels, err := g.source.RelationLabels(ctx, unknown)
		if err != nil {
			g.logger.Warn("relation label lookup failed", "relations", len(unknown), "error", err)
		} else {
			g.mu.Lock()
			for _, id := range unknown {
				g.known[id] = labels[id]
			}
			g.mu.Unlock()
		}
	}

	out := make([]Edge, len(edges))
	g.mu.RLock()
	for i, e := range edges {
		if e.Relation.Label == "" {
			e.Relation.Label = g.known[e.Relation.ID]
		}
		out[i] = e
	}
	g.mu.RUnlock()
	return out, nil
}
