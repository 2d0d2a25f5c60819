// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
)

// Retriever is implemented by *retriever.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.Request) (*retriever.Result, error)
}

// PathFinder is implemented by *pathfinder.Finder.
type PathFinder interface {
	Find(ctx context.Context, sources, targets []kg.Entity) (*pathfinder.Result, error)
}

// Service adapts the engine to tool handlers.
type Service struct {
	retriever Retriever
	finder    PathFinder
	logger    *slog.Logger
}

func NewService(r Retriever, f PathFinder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{retriever: r, finder: f, logger: logger}
}

func entities(ids []string) []kg.Entity {
	out := make([]kg.Entity, len(ids))
	for i, id := range ids {
		out[i] = kg.Entity(id)
	}
	return out
}

func stepTexts(p kg.Path) []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Text()
	}
	return out
}

func (s *Service) Retrieve(ctx context.Context, _ *mcp.CallToolRequest, args RetrieveArgs) (*mcp.CallToolResult, RetrieveResult, error) {
	res, err := s.retriever.Retrieve(ctx, retriever.Request{Question: args.Question, Seeds: entities(args.Seeds)})
	if err != nil {
		s.logger.Warn("retrieve_subgraph failed", "error", err)
		return nil, RetrieveResult{}, err
	}

	out := RetrieveResult{
		Status:        res.Status,
		HopsCompleted: res.HopsCompleted,
		Paths:         make([]RetrievedPath, len(res.Paths)),
		Triples:       make([]Triple, len(res.Subgraph)),
	}
	for i, p := range res.Paths {
		out.Paths[i] = RetrievedPath{Steps: stepTexts(p.Path), Score: p.Score}
	}
	for i, e := range res.Subgraph {
		out.Triples[i] = Triple{Source: string(e.Source), Relation: e.Relation.Text(), Target: string(e.Target)}
	}
	return nil, out, nil
}

func (s *Service) FindPaths(ctx context.Context, _ *mcp.CallToolRequest, args FindPathsArgs) (*mcp.CallToolResult, FindPathsResult, error) {
	res, err := s.finder.Find(ctx, entities(args.Sources), entities(args.Targets))
	if err != nil {
		s.logger.Warn("find_paths failed", "error", err)
		return nil, FindPathsResult{}, err
	}

	out := FindPathsResult{
		Status:    res.Status,
		Depth:     res.Depth,
		Partial:   res.Partial,
		Truncated: res.Truncated,
		Paths:     make([]ConnectingPath, len(res.Paths)),
	}
	for i, p := range res.Paths {
		ents := make([]string, len(p.Entities))
		for j, e := range p.Entities {
			ents[j] = string(e)
		}
		out.Paths[i] = ConnectingPath{
			Source:   string(p.Source),
			Target:   string(p.Target),
			Steps:    stepTexts(p.Steps),
			Entities: ents,
		}
	}
	return nil, out, nil
}
