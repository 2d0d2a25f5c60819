// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	"github.com/sigil-dev/srtk/internal/retry"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obamaGraph() *memgraph.Graph {
	return memgraph.New(
		memgraph.Triple("Q76", "educated_at", "Q49122"),
		memgraph.Triple("Q76", "educated_at", "Q1346110"),
		memgraph.Triple("Q76", "spouse", "Q13133"),
		memgraph.Triple("Q13133", "educated_at", "Q49122"),
		memgraph.Triple("Q49122", "located_in", "Q49111"),
	)
}

func step(id string, dir kg.Direction) kg.Step {
	return kg.Step{Relation: kg.Relation{ID: id}, Direction: dir}
}

func TestCandidateSteps_CollapsesByIdentity(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	frontier := kg.NewEntitySet("Q76")

	edges, err := g.Neighbors(ctx, frontier, kg.Both)
	require.NoError(t, err)

	steps := kg.CandidateSteps(edges, frontier, kg.Both)
	assert.Equal(t, []kg.Step{step("educated_at", kg.Forward), step("spouse", kg.Forward)}, steps)
}

func TestCandidateSteps_BothDirections(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	frontier := kg.NewEntitySet("Q49122")

	edges, err := g.Neighbors(ctx, frontier, kg.Both)
	require.NoError(t, err)

	steps := kg.CandidateSteps(edges, frontier, kg.Both)
	assert.Equal(t, []kg.Step{
		step("educated_at", kg.Backward),
		step("located_in", kg.Forward),
	}, steps)

	forwardOnly := kg.CandidateSteps(edges, frontier, kg.Forward)
	assert.Equal(t, []kg.Step{step("located_in", kg.Forward)}, forwardOnly)
}

func TestCandidateSteps_IgnoresEdgesOffFrontier(t *testing.T) {
	edges := []kg.Edge{memgraph.Triple("Q1", "P1", "Q2")}
	assert.Empty(t, kg.CandidateSteps(edges, kg.NewEntitySet("Q9"), kg.Both))
}

func TestTraverse(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	frontier := kg.NewEntitySet("Q76")
	edges, err := g.Neighbors(ctx, frontier, kg.Both)
	require.NoError(t, err)

	reached, used := kg.Traverse(edges, frontier, step("educated_at", kg.Forward))
	assert.Equal(t, kg.NewEntitySet("Q49122", "Q1346110"), reached)
	assert.Len(t, used, 2)

	back, _ := kg.Traverse(edges, frontier, step("educated_at", kg.Backward))
	assert.Empty(t, back)
}

func TestDeduce(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()

	got, err := kg.Deduce(ctx, g, kg.NewEntitySet("Q76"), kg.Path{
		step("spouse", kg.Forward),
		step("educated_at", kg.Forward),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, kg.NewEntitySet("Q49122"), got)

	empty, err := kg.Deduce(ctx, g, kg.NewEntitySet("Q76"), kg.Path{step("located_in", kg.Forward)}, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = kg.Deduce(ctx, g, kg.NewEntitySet("Q76"), kg.Path{step("educated_at", kg.Forward)}, 1)
	assert.ErrorIs(t, err, kg.ErrFrontierOverflow)
}

func TestCheckFrontier(t *testing.T) {
	assert.ErrorIs(t, kg.CheckFrontier(nil, 5), kg.ErrEmptyFrontier)
	assert.ErrorIs(t, kg.CheckFrontier(kg.NewEntitySet("a", "b", "c"), 2), kg.ErrFrontierOverflow)
	assert.NoError(t, kg.CheckFrontier(kg.NewEntitySet("a", "b"), 2))
	assert.NoError(t, kg.CheckFrontier(kg.NewEntitySet("a", "b"), 0))
}

func TestQueryError(t *testing.T) {
	assert.NoError(t, kg.QueryError(nil, "sparql", "x"))

	err := kg.QueryError(errors.New("reset"), "sparql", "neighbors")
	assert.True(t, kg.IsGraphQueryError(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphQueryUpstreamFailure))

	timeout := kg.QueryError(context.DeadlineExceeded, "sparql", "neighbors")
	assert.True(t, sigilerr.IsTimeout(timeout))
	assert.True(t, kg.IsGraphQueryError(timeout))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := kg.Open(context.Background(), kg.BackendConfig{Backend: "nope"})
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphBackendUnsupported))
}

func TestOpen_MemoryBackend(t *testing.T) {
	assert.Contains(t, kg.Backends(), "memory")
	b, err := kg.Open(context.Background(), kg.BackendConfig{Backend: "memory"})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

// ---------------------------------------------------------------------------
// Resilient
// ---------------------------------------------------------------------------

func fastRetry(attempts int) kg.ResilienceConfig {
	return kg.ResilienceConfig{Retry: retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}}
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	g := obamaGraph()
	var calls atomic.Int32
	flaky := kg.GatewayFunc(func(ctx context.Context, entities []kg.Entity, dir kg.Direction) ([]kg.Edge, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return g.Neighbors(ctx, entities, dir)
	})

	gw := kg.Resilient(flaky, "test", fastRetry(3), nil)
	edges, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilient_ExhaustedIsGraphQueryError(t *testing.T) {
	var calls atomic.Int32
	down := kg.GatewayFunc(func(context.Context, []kg.Entity, kg.Direction) ([]kg.Edge, error) {
		calls.Add(1)
		return nil, errors.New("no route to host")
	})

	gw := kg.Resilient(down, "test", fastRetry(2), nil)
	_, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	require.Error(t, err)
	assert.True(t, kg.IsGraphQueryError(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResilient_DoesNotRetryNonQueryErrors(t *testing.T) {
	var calls atomic.Int32
	bad := kg.GatewayFunc(func(context.Context, []kg.Entity, kg.Direction) ([]kg.Edge, error) {
		calls.Add(1)
		return nil, sigilerr.New(sigilerr.CodeGraphRequestInvalid, "bad id")
	})

	gw := kg.Resilient(bad, "test", fastRetry(5), nil)
	_, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphRequestInvalid))
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilient_PerCallTimeout(t *testing.T) {
	slow := kg.GatewayFunc(func(ctx context.Context, _ []kg.Entity, _ kg.Direction) ([]kg.Edge, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := fastRetry(2)
	cfg.Timeout = 5 * time.Millisecond
	gw := kg.Resilient(slow, "test", cfg, nil)
	_, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	assert.True(t, sigilerr.IsTimeout(err))
}

func TestResilient_CallerCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := kg.Resilient(obamaGraph(), "test", fastRetry(3), nil)
	_, err := gw.Neighbors(ctx, []kg.Entity{"Q76"}, kg.Forward)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Cached
// ---------------------------------------------------------------------------

func TestCached_ServesRepeatedEntitiesFromCache(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	gw := kg.Cached(g, kg.NewMemoryCache(64, 0), nil)

	first, err := gw.Neighbors(ctx, []kg.Entity{"Q76", "Q13133"}, kg.Forward)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Calls())

	second, err := gw.Neighbors(ctx, []kg.Entity{"Q13133", "Q76"}, kg.Forward)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Calls())
	assert.Equal(t, first, second)

	only, err := gw.Neighbors(ctx, []kg.Entity{"Q13133"}, kg.Forward)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Calls())
	assert.Equal(t, []kg.Edge{memgraph.Triple("Q13133", "educated_at", "Q49122")}, only)
}

func TestCached_CachesDeadEnds(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	gw := kg.Cached(g, kg.NewMemoryCache(64, 0), nil)

	for range 2 {
		edges, err := gw.Neighbors(ctx, []kg.Entity{"Q404"}, kg.Both)
		require.NoError(t, err)
		assert.Empty(t, edges)
	}
	assert.Equal(t, int64(1), g.Calls())
}

func TestCached_DirectionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	g := obamaGraph()
	gw := kg.Cached(g, kg.NewMemoryCache(64, 0), nil)

	fwd, err := gw.Neighbors(ctx, []kg.Entity{"Q49122"}, kg.Forward)
	require.NoError(t, err)
	back, err := gw.Neighbors(ctx, []kg.Entity{"Q49122"}, kg.Backward)
	require.NoError(t, err)

	assert.Len(t, fwd, 1)
	assert.Len(t, back, 2)
	assert.Equal(t, int64(2), g.Calls())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	failing := kg.GatewayFunc(func(context.Context, []kg.Entity, kg.Direction) ([]kg.Edge, error) {
		calls.Add(1)
		return nil, sigilerr.New(sigilerr.CodeGraphQueryUpstreamFailure, "down")
	})
	gw := kg.Cached(failing, kg.NewMemoryCache(8, 0), nil)

	for range 2 {
		_, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

// ---------------------------------------------------------------------------
// Labeled
// ---------------------------------------------------------------------------

type countingLabels struct {
	kg.LabelCatalog
	calls atomic.Int32
}

func (c *countingLabels) RelationLabels(ctx context.Context, ids []string) (map[string]string, error) {
	c.calls.Add(1)
	return c.LabelCatalog.RelationLabels(ctx, ids)
}

func TestLabeled_FillsAndMemoizes(t *testing.T) {
	ctx := context.Background()
	labels := &countingLabels{LabelCatalog: kg.LabelCatalog{"educated_at": "educated at"}}
	gw := kg.Labeled(obamaGraph(), labels, nil)

	for range 2 {
		edges, err := gw.Neighbors(ctx, []kg.Entity{"Q76"}, kg.Forward)
		require.NoError(t, err)
		for _, e := range edges {
			if e.Relation.ID == "educated_at" {
				assert.Equal(t, "educated at", e.Relation.Label)
			} else {
				assert.Empty(t, e.Relation.Label)
			}
		}
	}
	assert.Equal(t, int32(1), labels.calls.Load())
}

func TestParseLabels(t *testing.T) {
	cat, err := kg.ParseLabels([]byte("relations:\n  P69: educated at\n  P26: spouse\n"))
	require.NoError(t, err)
	assert.Equal(t, "educated at", cat["P69"])

	_, err = kg.ParseLabels([]byte("relations: [unclosed"))
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestLabelChain_FallsThrough(t *testing.T) {
	chain := kg.LabelChain{
		kg.LabelCatalog{"P1": "one"},
		kg.LabelCatalog{"P1": "shadowed", "P2": "two"},
	}
	got, err := chain.RelationLabels(context.Background(), []string{"P1", "P2", "P3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"P1": "one", "P2": "two"}, got)
}

// ---------------------------------------------------------------------------
// Instrumented
// ---------------------------------------------------------------------------

type recordingObserver struct {
	calls  int
	errors int
	edges  int
}

func (r *recordingObserver) ObserveGraphQuery(_ string, _ kg.Direction, _, edges int, _ time.Duration, err error) {
	r.calls++
	r.edges += edges
	if err != nil {
		r.errors++
	}
}

func TestInstrumented_ReportsEveryCall(t *testing.T) {
	obs := &recordingObserver{}
	gw := kg.Instrumented(obamaGraph(), "memory", obs)

	_, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gw.Neighbors(ctx, []kg.Entity{"Q76"}, kg.Forward)
	require.Error(t, err)

	assert.Equal(t, 2, obs.calls)
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, 3, obs.edges)
}
