// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

func newLoadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [triples-file...]",
		Short: "Import triples and relation labels into a sqlite graph",
		Long: "Append TSV (subject, relation, object[, label]) or jsonl triple files to the\n" +
			"sqlite store at graph.path, and optionally a YAML relation label catalog.",
		RunE: a.runLoad,
	}

	cmd.Flags().String("db", "", "override graph.path")
	cmd.Flags().String("labels", "", "relation label catalog (YAML map of id to label)")
	bindFlag(cmd, "db", "graph.path")

	return cmd
}

func (a *app) runLoad(cmd *cobra.Command, args []string) error {
	labelsPath, _ := cmd.Flags().GetString("labels")
	if len(args) == 0 && labelsPath == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "nothing to load: pass triple files or --labels")
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Graph.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	for _, path := range args {
		edges, err := readTriples(path)
		if err != nil {
			return err
		}
		added, err := store.PutEdges(ctx, edges)
		if err != nil {
			return err
		}
		a.logger.Info("loaded triples", "file", path, "read", len(edges), "added", added)
	}

	if labelsPath != "" {
		catalog, err := kg.LoadLabels(labelsPath)
		if err != nil {
			return err
		}
		if err := store.PutLabels(ctx, catalog); err != nil {
			return err
		}
		a.logger.Info("loaded relation labels", "file", labelsPath, "count", len(catalog))
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d triples\n", cfg.Graph.Path, total)
	return err
}

func readTriples(path string) ([]kg.Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeDatasetIOFailure, "opening triples %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return memgraph.ReadJSONL(f)
	}
	return memgraph.ReadTSV(f)
}
