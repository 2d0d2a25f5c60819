// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigil-dev/srtk/internal/retry"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// HTTPConfig configures a remote scoring service.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Retry    retry.Config
	Client   *http.Client
}

// HTTP calls a scoring service that hosts the trained encoder.
//
// Request:  {"query": "query: <q>", "relations": ["relation: <r>", ...]}
// Response: {"scores": [<float>, ...]}
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ BatchScorer = (*HTTP)(nil)

type scoreRequest struct {
	Query     string   `json:"query"`
	Relations []string `json:"relations"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTP validates cfg.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"scorer: endpoint must be an http(s) URL, got %q", cfg.Endpoint)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTP{cfg: cfg, client: client}, nil
}

func (h *HTTP) Score(ctx context.Context, query, relation string) (float64, error) {
	scores, err := h.ScoreBatch(ctx, query, []string{relation})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

func (h *HTTP) ScoreBatch(ctx context.Context, query string, relations []string) ([]float64, error) {
	req := scoreRequest{Query: ModelQuery(query), Relations: make([]string, len(relations))}
	for i, r := range relations {
		req.Relations[i] = ModelRelation(r)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerRequestInvalid, "encoding score request: %w", err)
	}

	return retry.DoValue(ctx, h.cfg.Retry, sigilerr.IsUpstreamFailure, func(ctx context.Context) ([]float64, error) {
		return h.post(ctx, body, len(relations))
	})
}

func (h *HTTP) post(ctx context.Context, body []byte, want int) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerRequestInvalid, "building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerUpstreamFailure, "calling scorer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := sigilerr.CodeScorerUpstreamFailure
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			code = sigilerr.CodeScorerRequestInvalid
		}
		return nil, sigilerr.New(code, "scorer: unexpected status",
			sigilerr.Field("status", resp.StatusCode),
			sigilerr.Field("body", strings.TrimSpace(string(msg))))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid, "decoding score response: %w", err)
	}
	if len(out.Scores) != want {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid,
			"scorer returned %d scores for %d relations", len(out.Scores), want)
	}
	return out.Scores, nil
}
