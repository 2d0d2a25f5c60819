// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// QueryObserver receives one notification per gateway call.
type QueryObserver interface {
	ObserveGraphQuery(backend string, dir Direction, entities, edges int, elapsed time.Duration, err error)
}

type instrumentedGateway struct {
	inner    Gateway
	backend  string
	observer QueryObserver
}

// Instrumented reports every call on gw to observer and records a span.
func Instrumented(gw Gateway, backend string, observer QueryObserver) Gateway {
	return &instrumentedGateway{inner: gw, backend: backend, observer: observer}
}

func (g *instrumentedGateway) Neighbors(ctx context.Context, entities []Entity, dir Direction) ([]Edge, error) {
	ctx, span := otel.Tracer("github.com/sigil-dev/srtk/internal/kg").Start(ctx, "kg.Neighbors")
	defer span.End()
	span.SetAttributes(
		attribute.String("kg.backend", g.backend),
		attribute.String("kg.direction", string(dir)),
		attribute.Int("kg.entities", len(entities)),
	)

	start := time.Now()
	edges, err := g.inner.Neighbors(ctx, entities, dir)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("kg.edges", len(edges)))
	}
	if g.observer != nil {
		g.observer.ObserveGraphQuery(g.backend, dir, len(entities), len(edges), elapsed, err)
	}
	return edges, err
}
