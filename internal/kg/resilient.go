// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sigil-dev/srtk/internal/retry"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// ResilienceConfig bounds every gateway call.
type ResilienceConfig struct {
	Timeout time.Duration
	Retry   retry.Config
}

type resilientGateway struct {
	inner   Gateway
	cfg     ResilienceConfig
	backend string
	logger  *slog.Logger
}

// Resilient applies a per-call timeout and bounded retries to gw. Only graph
// query errors are retried. Unclassified errors from gw are reported as
// upstream failures. Cancellation of the caller's context is returned as is.
func Resilient(gw Gateway, backend string, cfg ResilienceConfig, logger *slog.Logger) Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &resilientGateway{inner: gw, cfg: cfg, backend: backend, logger: logger}
}

func (g *resilientGateway) Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	attempt := 0
	edges, err := retry.DoValue(ctx, g.cfg.Retry, IsGraphQueryError, func(ctx context.Context) ([]Edge, error) {
		attempt++
		edges, err := g.call(ctx, entities, dir)
		if err != nil && IsGraphQueryError(err) {
			g.logger.Debug("graph query failed",
				"backend", g.backend,
				"attempt", attempt,
				"entities", len(entities),
				"error", err)
		}
		return edges, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return edges, nil
}

func (g *resilientGateway) call(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	edges, err := g.inner.Neighbors(callCtx, entities, dir)
	if err == nil {
		return edges, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return nil, sigilerr.Wrap(err, sigilerr.CodeGraphQueryTimeout, "graph query timed out",
			sigilerr.FieldBackend(g.backend), sigilerr.Field("timeout", g.cfg.Timeout.String()))
	}
	if sigilerr.CodeOf(err) == "" {
		return nil, QueryError(err, g.backend, "graph query failed")
	}
	return nil, err
}
