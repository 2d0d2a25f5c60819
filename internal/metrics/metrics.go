// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package metrics exposes Prometheus metrics for graph queries, scorer calls,
// retrievals and path searches, and tracks dependency health from the same
// observations.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/sigil-dev/srtk/pkg/health"
)

const namespace = "srtk"

// Recorder owns a private registry so tests and embedded uses never collide
// with the global one.
type Recorder struct {
	registry *prometheus.Registry

	graphQueries   *prometheus.CounterVec
	graphDuration  *prometheus.HistogramVec
	graphEdges     *prometheus.HistogramVec
	scorerCalls    *prometheus.CounterVec
	scorerPairs    *prometheus.CounterVec
	scorerDuration *prometheus.HistogramVec
	retrievals     *prometheus.CounterVec
	retrievalHops  prometheus.Histogram
	droppedItems   prometheus.Counter
	pathSearches   *prometheus.CounterVec
	pathsFound     prometheus.Histogram

	mu       sync.Mutex
	trackers map[string]*health.Tracker
	cooldown time.Duration
}

var (
	_ kg.QueryObserver = (*Recorder)(nil)
	_ scorer.Observer  = (*Recorder)(nil)
)

// New registers every collector on a fresh registry. cooldown controls how
// long a dependency is reported unhealthy after an upstream failure; zero
// means health.DefaultCooldown.
func New(cooldown time.Duration) *Recorder {
	if cooldown <= 0 {
		cooldown = health.DefaultCooldown
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		trackers: make(map[string]*health.Tracker),
		cooldown: cooldown,
	}

	r.graphQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_queries_total",
		Help:      "Neighbors calls by backend, direction and status",
	}, []string{"backend", "direction", "status"})
	r.graphDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_query_duration_seconds",
		Help:      "Neighbors call latency",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"backend"})
	r.graphEdges = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_query_edges",
		Help:      "Edges returned per Neighbors call",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"backend"})

	r.scorerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scorer_calls_total",
		Help:      "Scorer calls by backend and status",
	}, []string{"backend", "status"})
	r.scorerPairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scorer_pairs_total",
		Help:      "(query, relation) pairs sent to the scorer",
	}, []string{"backend"})
	r.scorerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scorer_call_duration_seconds",
		Help:      "Scorer call latency",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"backend"})

	r.retrievals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrievals_total",
		Help:      "Beam retrievals by outcome status",
	}, []string{"status"})
	r.retrievalHops = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_hops",
		Help:      "Hops completed per retrieval",
		Buckets:   prometheus.LinearBuckets(0, 1, 8),
	})
	r.droppedItems = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_dropped_items_total",
		Help:      "Beam items dropped because of gateway or scorer failures",
	})

	r.pathSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "path_searches_total",
		Help:      "Bidirectional path searches by outcome status",
	}, []string{"status"})
	r.pathsFound = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "path_search_paths",
		Help:      "Connecting paths found per search",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	})

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.graphQueries, r.graphDuration, r.graphEdges,
		r.scorerCalls, r.scorerPairs, r.scorerDuration,
		r.retrievals, r.retrievalHops, r.droppedItems,
		r.pathSearches, r.pathsFound,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case sigilerr.IsTimeout(err):
		return "timeout"
	case sigilerr.IsInvalidInput(err):
		return "invalid"
	default:
		return "error"
	}
}

func (r *Recorder) ObserveGraphQuery(backend string, dir kg.Direction, _, edges int, elapsed time.Duration, err error) {
	r.graphQueries.WithLabelValues(backend, string(dir), status(err)).Inc()
	r.graphDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	if err == nil {
		r.graphEdges.WithLabelValues(backend).Observe(float64(edges))
	}
	r.track("graph/"+backend, err)
}

func (r *Recorder) ObserveScore(backend string, pairs int, elapsed time.Duration, err error) {
	r.scorerCalls.WithLabelValues(backend, status(err)).Inc()
	r.scorerPairs.WithLabelValues(backend).Add(float64(pairs))
	r.scorerDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	r.track("scorer/"+backend, err)
}

// ObserveRetrieval records one finished retrieval.
func (r *Recorder) ObserveRetrieval(status string, hops, dropped int) {
	r.retrievals.WithLabelValues(status).Inc()
	r.retrievalHops.Observe(float64(hops))
	r.droppedItems.Add(float64(dropped))
}

// ObservePathSearch records one finished path search.
func (r *Recorder) ObservePathSearch(status string, paths int) {
	r.pathSearches.WithLabelValues(status).Inc()
	r.pathsFound.Observe(float64(paths))
}

// Only upstream failures and timeouts affect health; a bad request says
// nothing about the dependency.
func (r *Recorder) track(name string, err error) {
	t := r.tracker(name)
	switch {
	case err == nil:
		t.RecordSuccess()
	case sigilerr.IsUpstreamFailure(err), sigilerr.IsTimeout(err):
		t.RecordFailure()
	}
}

func (r *Recorder) tracker(name string) *health.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[name]
	if !ok {
		t, _ = health.NewTracker(r.cooldown)
		r.trackers[name] = t
	}
	return t
}

// Dependency is the health of one observed backend.
type Dependency struct {
	Name string `json:"name"`
	health.Metrics
}

// Health returns a snapshot of every dependency observed so far, sorted by name.
func (r *Recorder) Health() []Dependency {
	r.mu.Lock()
	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make([]Dependency, 0, len(names))
	for _, name := range names {
		out = append(out, Dependency{Name: name, Metrics: r.tracker(name).Snapshot()})
	}
	return out
}

// Healthy reports whether every observed dependency is available.
func (r *Recorder) Healthy() bool {
	for _, d := range r.Health() {
		if !d.Available {
			return false
		}
	}
	return true
}
