// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai embeds scorer texts with the OpenAI embeddings API.
package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/srtk/internal/scorer"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

// Config holds OpenAI embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
	MaxRetries int
}

// Embedder implements scorer.Embedder.
type Embedder struct {
	client openaisdk.Client
	config Config
}

var _ scorer.Embedder = (*Embedder)(nil)

// New creates an embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeScorerRequestInvalid, "openai: missing api_key in config",
			sigilerr.FieldBackend("openai"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (e *Embedder) Name() string { return "openai" }

// Embed returns one vector per text, ordered as the input.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.config.Model),
	}
	if e.config.Dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(e.config.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeScorerUpstreamFailure, "openai: creating embeddings")
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid, "openai: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, sigilerr.Errorf(sigilerr.CodeScorerResponseInvalid, "openai: missing embedding for input %d", i)
		}
	}
	return out, nil
}
