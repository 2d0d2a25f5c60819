// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	"github.com/sigil-dev/srtk/internal/metrics"
	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_GraphQueries(t *testing.T) {
	rec := metrics.New(time.Minute)
	g := memgraph.New(memgraph.Triple("Q76", "P26", "Q13133"))
	gw := kg.Instrumented(g, "memory", rec)

	_, err := gw.Neighbors(context.Background(), kg.EntitiesOf("Q76"), kg.Forward)
	require.NoError(t, err)
	_, err = gw.Neighbors(context.Background(), kg.EntitiesOf("Q76"), kg.Forward)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(rec.Registry(), "srtk_graph_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one label combination")

	assert.True(t, rec.Healthy())
	deps := rec.Health()
	require.Len(t, deps, 1)
	assert.Equal(t, "graph/memory", deps[0].Name)
}

func TestRecorder_UpstreamFailureMarksUnhealthy(t *testing.T) {
	rec := metrics.New(time.Hour)
	failing := kg.GatewayFunc(func(context.Context, []kg.Entity, kg.Direction) ([]kg.Edge, error) {
		return nil, sigilerr.New(sigilerr.CodeGraphQueryUpstreamFailure, "endpoint down")
	})
	gw := kg.Instrumented(failing, "sparql", rec)

	_, err := gw.Neighbors(context.Background(), kg.EntitiesOf("Q76"), kg.Both)
	require.Error(t, err)

	assert.False(t, rec.Healthy())
	deps := rec.Health()
	require.Len(t, deps, 1)
	assert.Equal(t, int64(1), deps[0].FailureCount)
}

func TestRecorder_InvalidRequestKeepsHealthy(t *testing.T) {
	rec := metrics.New(time.Hour)
	rec.ObserveScore("http", 3, time.Millisecond, sigilerr.New(sigilerr.CodeScorerRequestInvalid, "bad"))
	rec.ObserveScore("http", 2, time.Millisecond, errors.New("plain"))
	assert.True(t, rec.Healthy())

	count, err := testutil.GatherAndCount(rec.Registry(), "srtk_scorer_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "invalid and error statuses")
}

func TestRecorder_ScorerObserver(t *testing.T) {
	rec := metrics.New(0)
	s := scorer.Instrumented(scorer.Static{Default: 1}, "static", rec)
	_ = scorer.ScoreAll(context.Background(), s, "q", []string{"a", "b"})

	count, err := testutil.GatherAndCount(rec.Registry(), "srtk_scorer_pairs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_Handler(t *testing.T) {
	rec := metrics.New(0)
	rec.ObserveRetrieval("ok", 2, 1)
	rec.ObservePathSearch("no_path", 0)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `srtk_retrievals_total{status="ok"} 1`)
	assert.Contains(t, string(body), `srtk_retrieval_dropped_items_total 1`)
	assert.Contains(t, string(body), `srtk_path_searches_total{status="no_path"} 1`)
}
