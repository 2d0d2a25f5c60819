// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sparql implements kg.Gateway against a SPARQL 1.1 endpoint such as
// a Wikidata mirror.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

const backendName = "sparql"

const (
	DefaultEntityPrefix    = "http://www.wikidata.org/entity/"
	DefaultPredicatePrefix = "http://www.wikidata.org/prop/direct/"
	defaultLanguage        = "en"
	defaultBatchSize       = 50
	defaultConcurrency     = 4
	maxResponseBytes       = 64 << 20
	rdfsLabel              = "http://www.w3.org/2000/01/rdf-schema#label"
)

func init() {
	kg.RegisterBackend(backendName, func(_ context.Context, cfg kg.BackendConfig) (kg.Backend, error) {
		return New(Config{
			Endpoint:        cfg.Endpoint,
			EntityPrefix:    cfg.EntityPrefix,
			PredicatePrefix: cfg.PredicatePrefix,
			LabelLanguage:   cfg.LabelLanguage,
			Username:        cfg.Username,
			Password:        cfg.Password,
			BatchSize:       cfg.BatchSize,
			Concurrency:     cfg.Concurrency,
			HTTPClient:      &http.Client{Timeout: cfg.Timeout},
		})
	})
}

// Config configures the endpoint client. Zero values take the defaults.
type Config struct {
	Endpoint        string
	EntityPrefix    string
	PredicatePrefix string
	LabelLanguage   string
	Username        string
	Password        string
	BatchSize       int
	Concurrency     int
	HTTPClient      *http.Client
}

// Client queries a SPARQL endpoint. Entities and relations are identified by
// IRI suffix: Q76 stands for EntityPrefix+"Q76", P69 for PredicatePrefix+"P69".
// Only edges whose object is itself an entity are returned, so literals never
// enter a frontier.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var (
	_ kg.Backend     = (*Client)(nil)
	_ kg.LabelSource = (*Client)(nil)
)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
			"sparql: graph.endpoint is required", sigilerr.FieldBackend(backendName))
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"sparql: graph.endpoint must be an absolute URL, got %q", cfg.Endpoint)
	}
	if cfg.EntityPrefix == "" {
		cfg.EntityPrefix = DefaultEntityPrefix
	}
	if cfg.PredicatePrefix == "" {
		cfg.PredicatePrefix = DefaultPredicatePrefix
	}
	if cfg.LabelLanguage == "" {
		cfg.LabelLanguage = defaultLanguage
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient, logger: slog.Default()}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Neighbors implements kg.Gateway. The entity set is split into VALUES
// batches that run concurrently.
func (c *Client) Neighbors(ctx context.Context, entities []kg.Entity, dir kg.Direction) ([]kg.Edge, error) {
	set := kg.NewEntitySet(entities...)
	for _, e := range set {
		if !validIRISuffix(string(e)) {
			return nil, sigilerr.New(sigilerr.CodeGraphRequestInvalid, "sparql: entity is not a valid IRI suffix",
				sigilerr.FieldEntity(string(e)))
		}
	}

	var queries []string
	for start := 0; start < len(set); start += c.cfg.BatchSize {
		batch := set[start:min(start+c.cfg.BatchSize, len(set))]
		if dir.Includes(kg.Forward) {
			queries = append(queries, c.neighborQuery("s", batch))
		}
		if dir.Includes(kg.Backward) {
			queries = append(queries, c.neighborQuery("o", batch))
		}
	}

	var (
		mu  sync.Mutex
		out []kg.Edge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, q := range queries {
		g.Go(func() error {
			res, err := c.run(gctx, q)
			if err != nil {
				return err
			}
			edges := c.edgesOf(res)
			mu.Lock()
			out = append(out, edges...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return kg.UniqueEdges(out), nil
}

// neighborQuery binds the batch to ?s (outgoing) or ?o (incoming).
func (c *Client) neighborQuery(bound string, batch []kg.Entity) string {
	var b strings.Builder
	b.WriteString("SELECT ?s ?p ?o WHERE {\n  VALUES ?")
	b.WriteString(bound)
	b.WriteString(" {")
	for _, e := range batch {
		b.WriteString(" <")
		b.WriteString(c.cfg.EntityPrefix)
		b.WriteString(string(e))
		b.WriteString(">")
	}
	b.WriteString(" }\n  ?s ?p ?o .\n")
	fmt.Fprintf(&b, "  FILTER(STRSTARTS(STR(?p), %q))\n", c.cfg.PredicatePrefix)
	fmt.Fprintf(&b, "  FILTER(STRSTARTS(STR(?s), %q) && STRSTARTS(STR(?o), %q))\n", c.cfg.EntityPrefix, c.cfg.EntityPrefix)
	b.WriteString("}")
	return b.String()
}

func (c *Client) edgesOf(res *results) []kg.Edge {
	edges := make([]kg.Edge, 0, len(res.Results.Bindings))
	for _, row := range res.Results.Bindings {
		s, okS := trimIRI(row["s"], c.cfg.EntityPrefix)
		p, okP := trimIRI(row["p"], c.cfg.PredicatePrefix)
		o, okO := trimIRI(row["o"], c.cfg.EntityPrefix)
		if !okS || !okP || !okO {
			continue
		}
		edges = append(edges, kg.Edge{Source: kg.Entity(s), Relation: kg.Relation{ID: p}, Target: kg.Entity(o)})
	}
	return edges
}

// RelationLabels implements kg.LabelSource using rdfs:label in the configured
// language. The predicate P69 is looked up as the entity EntityPrefix+"P69".
func (c *Client) RelationLabels(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += c.cfg.BatchSize {
		batch := ids[start:min(start+c.cfg.BatchSize, len(ids))]

		var b strings.Builder
		b.WriteString("SELECT ?p ?label WHERE {\n  VALUES ?p {")
		for _, id := range batch {
			if !validIRISuffix(id) {
				continue
			}
			b.WriteString(" <")
			b.WriteString(c.cfg.EntityPrefix)
			b.WriteString(id)
			b.WriteString(">")
		}
		fmt.Fprintf(&b, " }\n  ?p <%s> ?label .\n  FILTER(LANG(?label) = %q)\n}", rdfsLabel, c.cfg.LabelLanguage)

		res, err := c.run(ctx, b.String())
		if err != nil {
			return out, err
		}
		for _, row := range res.Results.Bindings {
			id, ok := trimIRI(row["p"], c.cfg.EntityPrefix)
			if !ok || row["label"].Value == "" {
				continue
			}
			out[id] = row["label"].Value
		}
	}
	return out, nil
}

type term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]term `json:"bindings"`
	} `json:"results"`
}

func (c *Client) run(ctx context.Context, query string) (*results, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeGraphRequestInvalid, "sparql: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, kg.QueryError(err, backendName, "sparql: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := sigilerr.CodeGraphQueryUpstreamFailure
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			code = sigilerr.CodeGraphRequestInvalid
		}
		return nil, sigilerr.New(code, "sparql: unexpected status",
			sigilerr.Field("status", resp.StatusCode),
			sigilerr.Field("body", strings.TrimSpace(string(body))),
			sigilerr.FieldBackend(backendName))
	}

	var res results
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&res); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeGraphQueryResponseInvalid, "sparql: decoding results",
			sigilerr.FieldBackend(backendName))
	}
	return &res, nil
}

func trimIRI(t term, prefix string) (string, bool) {
	if t.Type != "uri" || !strings.HasPrefix(t.Value, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(t.Value, prefix)
	return id, id != ""
}

// validIRISuffix rejects characters that would break out of an IRIREF.
func validIRISuffix(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " <>\"{}|^`\\\t\n\r")
}
