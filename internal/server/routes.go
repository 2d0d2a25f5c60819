// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/metrics"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the health of the graph backend and the relevance scorer.",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "retrieve-subgraph",
		Method:      http.MethodPost,
		Path:        "/api/v1/retrieve",
		Summary:     "Retrieve a question-relevant subgraph",
		Tags:        []string{"retrieval"},
	}, s.handleRetrieve)

	huma.Register(s.api, huma.Operation{
		OperationID: "find-paths",
		Method:      http.MethodPost,
		Path:        "/api/v1/paths",
		Summary:     "Find shortest connecting paths",
		Tags:        []string{"supervision"},
	}, s.handleFindPaths)

	huma.Register(s.api, huma.Operation{
		OperationID: "build-examples",
		Method:      http.MethodPost,
		Path:        "/api/v1/examples",
		Summary:     "Build training examples for one sample",
		Tags:        []string{"supervision"},
	}, s.handleExamples)
}

// --- Request/Response types for huma ---

// HealthBody is the JSON body of the health endpoint.
type HealthBody struct {
	Status       string               `json:"status" example:"ok" doc:"ok or degraded"`
	Dependencies []metrics.Dependency `json:"dependencies"`
}

type healthOutput struct {
	Status int
	Body   HealthBody
}

type retrieveInput struct {
	Body struct {
		Question string      `json:"question" minLength:"1" doc:"Natural-language question"`
		Seeds    []kg.Entity `json:"seeds" minItems:"1" doc:"Entity identifiers linked from the question"`
	}
}

type retrieveOutput struct {
	Body *retriever.Result
}

type pathsInput struct {
	Body struct {
		Sources []kg.Entity `json:"sources" minItems:"1" doc:"Question entities"`
		Targets []kg.Entity `json:"targets" minItems:"1" doc:"Answer entities"`
	}
}

// PathsBody is a path search result plus its relation-only view.
type PathsBody struct {
	Paths         []pathfinder.ConnectingPath `json:"paths"`
	RelationPaths []pathfinder.RelationPath   `json:"relation_paths"`
	Status        string                      `json:"status" example:"ok"`
	Depth         int                         `json:"depth"`
	Partial       bool                        `json:"partial" doc:"A search side stopped early on a gateway failure"`
	Truncated     bool                        `json:"truncated" doc:"More shortest paths existed than max_paths"`
}

type pathsOutput struct {
	Body PathsBody
}

type examplesInput struct {
	Body struct {
		ID               string      `json:"id,omitempty"`
		Question         string      `json:"question" minLength:"1"`
		QuestionEntities []kg.Entity `json:"question_entities" minItems:"1"`
		AnswerEntities   []kg.Entity `json:"answer_entities" minItems:"1"`
	}
}

type examplesOutput struct {
	Body *supervision.Outcome
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{Status: http.StatusOK, Body: HealthBody{Status: "ok", Dependencies: []metrics.Dependency{}}}
	if s.services.health == nil {
		return out, nil
	}
	out.Body.Dependencies = s.services.health.Health()
	if !s.services.health.Healthy() {
		out.Status = http.StatusServiceUnavailable
		out.Body.Status = "degraded"
	}
	return out, nil
}

func (s *Server) handleRetrieve(ctx context.Context, input *retrieveInput) (*retrieveOutput, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	res, err := s.services.retriever.Retrieve(ctx, retriever.Request{
		Question: input.Body.Question,
		Seeds:    input.Body.Seeds,
	})
	if err != nil {
		return nil, s.apiError(ctx, "retrieval", err)
	}
	return &retrieveOutput{Body: res}, nil
}

func (s *Server) handleFindPaths(ctx context.Context, input *pathsInput) (*pathsOutput, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	res, err := s.services.finder.Find(ctx, input.Body.Sources, input.Body.Targets)
	if err != nil {
		return nil, s.apiError(ctx, "path search", err)
	}
	return &pathsOutput{Body: PathsBody{
		Paths:         res.Paths,
		RelationPaths: res.RelationPaths(),
		Status:        res.Status,
		Depth:         res.Depth,
		Partial:       res.Partial,
		Truncated:     res.Truncated,
	}}, nil
}

func (s *Server) handleExamples(ctx context.Context, input *examplesInput) (*examplesOutput, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	out, err := s.services.labeler.Process(ctx, supervision.Sample{
		ID:               input.Body.ID,
		Question:         input.Body.Question,
		QuestionEntities: input.Body.QuestionEntities,
		AnswerEntities:   input.Body.AnswerEntities,
	})
	if err != nil {
		return nil, s.apiError(ctx, "labeling", err)
	}
	return &examplesOutput{Body: out}, nil
}

func (s *Server) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// apiError maps an engine error to an HTTP problem. Details of internal
// failures are logged, not returned.
func (s *Server) apiError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(op + " timed out")
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable(op + " cancelled")
	}

	status := sigilerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn(op+" failed",
			"request_id", RequestID(ctx),
			"code", sigilerr.CodeOf(err),
			"error", err)
	}
	if status == http.StatusInternalServerError {
		return huma.Error500InternalServerError(op + " failed")
	}
	return huma.NewError(status, err.Error())
}
