// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/srtk/internal/dataset"
	"github.com/sigil-dev/srtk/internal/retriever"
)

func newRetrieveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve question-relevant subgraphs for a sample file",
		Long: "Run beam retrieval from the question entities of every sample and write one\n" +
			"record per sample with the scored relation paths and the subgraph edges.",
		Args: cobra.NoArgs,
		RunE: a.runRetrieve,
	}

	cmd.Flags().StringP("input", "i", "", "sample jsonl file")
	cmd.Flags().StringP("output", "o", "-", "output jsonl file, - for stdout")
	cmd.Flags().Int("beam-width", 0, "override retrieval.beam_width")
	cmd.Flags().Int("max-hops", 0, "override retrieval.max_hops")
	cmd.Flags().Int("concurrency", 4, "samples retrieved in parallel")
	_ = cmd.MarkFlagRequired("input")
	bindFlag(cmd, "beam-width", "retrieval.beam_width")
	bindFlag(cmd, "max-hops", "retrieval.max_hops")

	return cmd
}

func (a *app) runRetrieve(cmd *cobra.Command, _ []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = 1
	}

	samples, err := readSamples(input)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := WireEngine(ctx, cfg, a.logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	type outcome struct {
		res *retriever.Result
		err error
	}
	results := make([]outcome, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, s := range samples {
		g.Go(func() error {
			res, err := eng.Retriever.Retrieve(gctx, retriever.Request{Question: s.Question, Seeds: s.QuestionEntities})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("retrieval failed", "sample_id", s.ID, "error", err)
			}
			results[i] = outcome{res: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w, err := openOutput(cmd, output)
	if err != nil {
		return err
	}
	var noPath int
	for i, s := range samples {
		rec := dataset.NewRetrievalRecord(s, results[i].res, results[i].err)
		if rec.Status == retriever.StatusNoPath {
			noPath++
		}
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	a.logger.Info("retrieval finished", "records", len(samples), "no_path", noPath)
	return nil
}
