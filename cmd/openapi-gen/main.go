// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/server"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec builds a server over stub engine components and returns the
// OpenAPI document huma derives from the route types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubRetriever{}, stubFinder{}, stubLabeler{})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, svc)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Stubs are registered for schema discovery only and never called.

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, retriever.Request) (*retriever.Result, error) {
	return nil, nil
}

type stubFinder struct{}

func (stubFinder) Find(context.Context, []kg.Entity, []kg.Entity) (*pathfinder.Result, error) {
	return nil, nil
}

type stubLabeler struct{}

func (stubLabeler) Process(context.Context, supervision.Sample) (*supervision.Outcome, error) {
	return nil, nil
}
