// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sparql_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/sparql"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wd  = sparql.DefaultEntityPrefix
	wdt = sparql.DefaultPredicatePrefix
)

func uri(v string) map[string]string     { return map[string]string{"type": "uri", "value": v} }
func literal(v string) map[string]string { return map[string]string{"type": "literal", "value": v, "xml:lang": "en"} }

func writeBindings(t *testing.T, w http.ResponseWriter, vars []string, rows ...map[string]map[string]string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/sparql-results+json")
	body := map[string]any{
		"head":    map[string]any{"vars": vars},
		"results": map[string]any{"bindings": rows},
	}
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

// fakeEndpoint answers forward, backward and label queries for Q76.
func fakeEndpoint(t *testing.T, requests *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		q := r.PostForm.Get("query")

		switch {
		case strings.Contains(q, "rdf-schema#label"):
			writeBindings(t, w, []string{"p", "label"},
				map[string]map[string]string{"p": uri(wd + "P69"), "label": literal("educated at")})
		case strings.Contains(q, "VALUES ?s"):
			assert.Contains(t, q, "<"+wd+"Q76>")
			writeBindings(t, w, []string{"s", "p", "o"},
				map[string]map[string]string{"s": uri(wd + "Q76"), "p": uri(wdt + "P69"), "o": uri(wd + "Q49122")},
				map[string]map[string]string{"s": uri(wd + "Q76"), "p": uri(wdt + "P69"), "o": uri(wd + "Q1346110")},
				map[string]map[string]string{"s": uri(wd + "Q76"), "p": uri(wdt + "P1477"), "o": literal("Barack Hussein Obama II")},
			)
		case strings.Contains(q, "VALUES ?o"):
			writeBindings(t, w, []string{"s", "p", "o"},
				map[string]map[string]string{"s": uri(wd + "Q13133"), "p": uri(wdt + "P26"), "o": uri(wd + "Q76")},
			)
		default:
			http.Error(w, "unexpected query", http.StatusBadRequest)
		}
	}))
}

func TestClient_NeighborsForwardAndBackward(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEndpoint(t, &requests)
	defer srv.Close()

	c, err := sparql.New(sparql.Config{Endpoint: srv.URL})
	require.NoError(t, err)

	fwd, err := c.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	require.NoError(t, err)
	assert.Equal(t, []kg.Edge{
		{Source: "Q76", Relation: kg.Relation{ID: "P69"}, Target: "Q1346110"},
		{Source: "Q76", Relation: kg.Relation{ID: "P69"}, Target: "Q49122"},
	}, fwd, "literal objects are dropped")

	both, err := c.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Both)
	require.NoError(t, err)
	assert.Len(t, both, 3)
	assert.Equal(t, int32(3), requests.Load())
}

func TestClient_BatchesValues(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeBindings(t, w, []string{"s", "p", "o"})
	}))
	defer srv.Close()

	c, err := sparql.New(sparql.Config{Endpoint: srv.URL, BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)

	_, err = c.Neighbors(context.Background(), []kg.Entity{"Q1", "Q2", "Q3", "Q4", "Q5"}, kg.Forward)
	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load())
}

func TestClient_RelationLabels(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEndpoint(t, &requests)
	defer srv.Close()

	c, err := sparql.New(sparql.Config{Endpoint: srv.URL})
	require.NoError(t, err)

	labels, err := c.RelationLabels(context.Background(), []string{"P69", "P26"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"P69": "educated at"}, labels)

	gw := kg.Labeled(c, c, nil)
	edges, err := gw.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	require.NoError(t, err)
	for _, e := range edges {
		assert.Equal(t, "educated at", e.Relation.Label)
	}
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "reader" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeBindings(t, w, []string{"s", "p", "o"})
	}))
	defer srv.Close()

	c, err := sparql.New(sparql.Config{Endpoint: srv.URL, Username: "reader", Password: "s3cret"})
	require.NoError(t, err)
	_, err = c.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	assert.NoError(t, err)

	anon, err := sparql.New(sparql.Config{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = anon.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphRequestInvalid))
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error is upstream failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, kg.IsGraphQueryError(err))
				assert.True(t, sigilerr.IsUpstreamFailure(err))
			},
		},
		{
			name: "rate limit is upstream failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, kg.IsGraphQueryError(err))
			},
		},
		{
			name: "malformed body is invalid response",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>oops"))
			},
			check: func(t *testing.T, err error) {
				assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphQueryResponseInvalid))
				assert.True(t, kg.IsGraphQueryError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, err := sparql.New(sparql.Config{Endpoint: srv.URL})
			require.NoError(t, err)
			_, err = c.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := sparql.New(sparql.Config{Endpoint: url})
	require.NoError(t, err)
	_, err = c.Neighbors(context.Background(), []kg.Entity{"Q76"}, kg.Forward)
	assert.True(t, kg.IsGraphQueryError(err))
}

func TestClient_RejectsUnsafeEntity(t *testing.T) {
	c, err := sparql.New(sparql.Config{Endpoint: "http://localhost:1/sparql"})
	require.NoError(t, err)
	_, err = c.Neighbors(context.Background(), []kg.Entity{"Q76> } DROP ALL {"}, kg.Forward)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeGraphRequestInvalid))
}

func TestNew_Validation(t *testing.T) {
	_, err := sparql.New(sparql.Config{})
	assert.True(t, sigilerr.IsInvalidInput(err))

	_, err = sparql.New(sparql.Config{Endpoint: "not a url"})
	assert.True(t, sigilerr.IsInvalidInput(err))

	b, err := kg.Open(context.Background(), kg.BackendConfig{Endpoint: "http://localhost:1234/api/endpoint/sparql"})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
