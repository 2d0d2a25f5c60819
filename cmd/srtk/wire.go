// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/sigil-dev/srtk/internal/config"
	"github.com/sigil-dev/srtk/internal/kg"
	_ "github.com/sigil-dev/srtk/internal/kg/memgraph" // register memory backend
	"github.com/sigil-dev/srtk/internal/kg/rediscache"
	_ "github.com/sigil-dev/srtk/internal/kg/sparql" // register sparql backend
	"github.com/sigil-dev/srtk/internal/kg/sqlite"
	"github.com/sigil-dev/srtk/internal/metrics"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/scorer"
	"github.com/sigil-dev/srtk/internal/scorer/google"
	"github.com/sigil-dev/srtk/internal/scorer/openai"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Engine holds the wired gateway stack and every component built on it.
type Engine struct {
	Gateway   kg.Gateway
	Retriever *retriever.Retriever // nil unless built with a scorer
	Finder    *pathfinder.Finder
	Pipeline  *supervision.Pipeline
	Metrics   *metrics.Recorder

	closers []io.Closer
}

// WireEngine opens the graph backend and builds the engine components.
// The scorer, and with it the retriever, is only built when withScorer is
// set, so labeling runs never need scorer credentials.
func WireEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, withScorer bool) (*Engine, error) {
	e := &Engine{Metrics: metrics.New(cfg.Health.Cooldown)}

	gw, err := e.wireGateway(ctx, cfg, logger)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.Gateway = gw

	if withScorer {
		s, err := wireScorer(ctx, cfg.Scorer, e.Metrics)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.Retriever, err = retriever.New(gw, s, cfg.Retrieval,
			retriever.WithLogger(logger), retriever.WithObserver(e.Metrics))
		if err != nil {
			_ = e.Close()
			return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating retriever")
		}
	}

	e.Finder, err = pathfinder.New(gw, cfg.Paths,
		pathfinder.WithLogger(logger), pathfinder.WithObserver(e.Metrics))
	if err != nil {
		_ = e.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating path finder")
	}

	e.Pipeline, err = supervision.NewPipeline(e.Finder, gw, cfg.Labeling, logger)
	if err != nil {
		_ = e.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating labeling pipeline")
	}

	return e, nil
}

// wireGateway stacks, from the outside in: response cache, relation labels,
// metrics, then per-call timeout and retries around the backend.
func (e *Engine) wireGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kg.Gateway, error) {
	g := cfg.Graph

	backend, err := kg.Open(ctx, g.BackendConfig())
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "opening %s graph backend", g.Backend)
	}
	e.closers = append(e.closers, backend)

	var gw kg.Gateway = kg.Resilient(backend, g.Backend, kg.ResilienceConfig{Timeout: g.Timeout, Retry: g.Retry}, logger)
	gw = kg.Instrumented(gw, g.Backend, e.Metrics)

	var labels kg.LabelChain
	if cfg.Labels.Catalog != "" {
		catalog, err := kg.LoadLabels(cfg.Labels.Catalog)
		if err != nil {
			return nil, err
		}
		labels = append(labels, catalog)
		logger.Debug("loaded relation labels", "path", cfg.Labels.Catalog, "count", len(catalog))
	}
	if src, ok := backend.(kg.LabelSource); ok {
		labels = append(labels, src)
	}
	if len(labels) > 0 {
		gw = kg.Labeled(gw, labels, logger)
	}

	switch g.Cache.Backend {
	case "memory":
		gw = kg.Cached(gw, kg.NewMemoryCache(g.Cache.Size, g.Cache.TTL), logger)
	case "redis":
		cache, err := rediscache.New(ctx, rediscache.Options{URL: g.Cache.URL, Prefix: g.Cache.Prefix, TTL: g.Cache.TTL})
		if err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "connecting graph cache")
		}
		e.closers = append(e.closers, cache)
		gw = kg.Cached(gw, cache, logger)
	}

	logger.Debug("graph gateway ready", "backend", g.Backend, "cache", g.Cache.Backend)
	return gw, nil
}

// wireScorer builds the configured scorer, memoized and instrumented.
func wireScorer(ctx context.Context, cfg config.ScorerConfig, observer scorer.Observer) (scorer.Scorer, error) {
	var s scorer.Scorer
	switch cfg.Backend {
	case "http":
		h, err := scorer.NewHTTP(scorer.HTTPConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
			Retry:    cfg.Retry,
		})
		if err != nil {
			return nil, err
		}
		s = h
	case "openai":
		emb, err := openai.New(openai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxRetries: cfg.Retry.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		s = scorer.NewEmbedding(emb, cfg.CacheSize)
	case "google":
		emb, err := google.New(ctx, google.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		s = scorer.NewEmbedding(emb, cfg.CacheSize)
	case "static":
		table := scorer.Static{Scores: cfg.Scores, Default: cfg.Default}
		s = scorer.Func(func(ctx context.Context, query, relation string) (float64, error) {
			return table.Score(ctx, query, strings.ToLower(relation))
		})
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "unknown scorer backend %q", cfg.Backend)
	}

	if cfg.CacheSize > 0 {
		s = scorer.Memoize(s, cfg.CacheSize)
	}
	return scorer.Instrumented(s, cfg.Backend, observer), nil
}

// Close releases the backend and cache connections.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// openStore opens the sqlite triple store used by the load command.
func openStore(path string) (*sqlite.Store, error) {
	if path == "" {
		return nil, sigilerr.New(sigilerr.CodeCLIInputInvalid, "graph.path (or --db) is required")
	}
	return sqlite.Open(path)
}
