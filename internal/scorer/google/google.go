// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google embeds scorer texts with the Gemini embedContent API.
package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-004"

// Config holds Gemini embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// Embedder implements scorer.Embedder.
type Embedder struct {
	client *genai.Client
	config Config
}

var _ scorer.Embedder = (*Embedder)(nil)

// New creates an embedder. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeScorerRequestInvalid, "google: missing api_key in config",
			sigilerr.FieldBackend("google"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeScorerUpstreamFailure, "google: creating client")
	}
	return &Embedder{client: client, config: cfg}, nil
}

func (e *Embedder) Name() string { return "google" }

// Embed returns one vector per text, ordered as the input.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.config.Dimensions > 0 {
		dims := int32(e.config.Dimensions)
		cfg.OutputDimensionality = &dims
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, cfg)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeScorerUpstreamFailure, "google: embedding content")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid,
			"google: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid, "google: missing embedding for input %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}
