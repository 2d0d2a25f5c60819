// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/srtk/internal/dataset"
	"github.com/sigil-dev/srtk/internal/supervision"
)

func newSearchPathsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-paths",
		Short: "Find shortest paths from question entities to answers",
		Long: "For every sample, search the shortest relation paths that connect a question\n" +
			"entity to an answer entity and score each by the Jaccard overlap of the\n" +
			"entities it deduces with the answers.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd, func(w *dataset.Writer, o *supervision.Outcome) error {
				return w.Write(dataset.NewPathRecord(o))
			})
		},
	}
	addBatchFlags(cmd)
	return cmd
}

func newPreprocessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Build scorer training examples from grounded samples",
		Long: "Search and score paths like search-paths, keep the selected ones, and write\n" +
			"one contrastive training example per path step with sibling relations as\n" +
			"negatives.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBatch(cmd, func(w *dataset.Writer, o *supervision.Outcome) error {
				for _, ex := range o.Examples {
					if err := w.Write(ex); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	addBatchFlags(cmd)
	cmd.Flags().String("selection", "", "override labeling.selection (best or all)")
	cmd.Flags().Int("max-negatives", 0, "override labeling.max_negatives")
	bindFlag(cmd, "selection", "labeling.selection")
	bindFlag(cmd, "max-negatives", "labeling.max_negatives")
	return cmd
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "sample jsonl file")
	cmd.Flags().StringP("output", "o", "-", "output jsonl file, - for stdout")
	cmd.Flags().Int("concurrency", 4, "samples processed in parallel")
	cmd.Flags().Int("max-depth", 0, "override paths.max_depth")
	cmd.Flags().Int("max-paths", 0, "override paths.max_paths")
	_ = cmd.MarkFlagRequired("input")
	bindFlag(cmd, "max-depth", "paths.max_depth")
	bindFlag(cmd, "max-paths", "paths.max_paths")
}

// runBatch runs the labeling pipeline over the input file and hands every
// emitted outcome to write. The summary goes to stderr.
func (a *app) runBatch(cmd *cobra.Command, write func(*dataset.Writer, *supervision.Outcome) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	samples, err := readSamples(input)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := WireEngine(ctx, cfg, a.logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	w, err := openOutput(cmd, output)
	if err != nil {
		return err
	}

	sum, runErr := eng.Pipeline.ProcessBatch(ctx, samples, concurrency, func(o *supervision.Outcome) error {
		return write(w, o)
	})
	if err := errors.Join(runErr, w.Close()); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "processed %d, skipped %d, failed %d, total %d (%d examples)\n",
		sum.Processed, sum.Skipped, sum.Failed, sum.Total, sum.Examples)
	return err
}
