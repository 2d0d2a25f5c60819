// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/metrics"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Retriever runs beam retrieval. Implemented by *retriever.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.Request) (*retriever.Result, error)
}

// PathFinder finds shortest connecting paths. Implemented by
// *pathfinder.Finder.
type PathFinder interface {
	Find(ctx context.Context, sources, targets []kg.Entity) (*pathfinder.Result, error)
}

// Labeler turns one sample into training examples. Implemented by
// *supervision.Pipeline.
type Labeler interface {
	Process(ctx context.Context, s supervision.Sample) (*supervision.Outcome, error)
}

// HealthReporter reports dependency health. Implemented by
// *metrics.Recorder.
type HealthReporter interface {
	Health() []metrics.Dependency
	Healthy() bool
}

// Services holds the engine components behind the routes. Each is an
// interface so tests can substitute fakes.
type Services struct {
	retriever Retriever
	finder    PathFinder
	labeler   Labeler
	health    HealthReporter
	metrics   http.Handler
}

// ServiceOption sets an optional service.
type ServiceOption func(*Services)

// WithHealth reports dependency health on /health.
func WithHealth(h HealthReporter) ServiceOption {
	return func(s *Services) { s.health = h }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) ServiceOption {
	return func(s *Services) { s.metrics = h }
}

// NewServices requires the three engine components.
func NewServices(r Retriever, f PathFinder, l Labeler, opts ...ServiceOption) (*Services, error) {
	if r == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "retriever is required")
	}
	if f == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "path finder is required")
	}
	if l == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "labeler is required")
	}
	s := &Services{retriever: r, finder: f, labeler: l}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MetricsHandler returns the /metrics handler, or nil.
func (s *Services) MetricsHandler() http.Handler { return s.metrics }
