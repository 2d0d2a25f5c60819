// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package supervision_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, dir kg.Direction) kg.Step {
	return kg.Step{Relation: kg.Relation{ID: id}, Direction: dir}
}

func obamaGraph() *memgraph.Graph {
	return memgraph.New(
		memgraph.Triple("Q76", "educated_at", "Q49122"),
		memgraph.Triple("Q76", "educated_at", "Q1346110"),
		memgraph.Triple("Q76", "spouse", "Q13133"),
		memgraph.Triple("Q13133", "educated_at", "Q49122"),
		memgraph.Triple("Q49122", "located_in", "Q49111"),
	)
}

// ---------------------------------------------------------------------------
// Jaccard
// ---------------------------------------------------------------------------

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b kg.EntitySet
		want float64
	}{
		{"equal", kg.EntitiesOf("A", "B"), kg.EntitiesOf("B", "A"), 1},
		{"both empty", nil, nil, 1},
		{"disjoint", kg.EntitiesOf("A"), kg.EntitiesOf("B"), 0},
		{"one empty", nil, kg.EntitiesOf("B"), 0},
		{"half", kg.EntitiesOf("A", "B"), kg.EntitiesOf("B"), 0.5},
		{"third", kg.EntitiesOf("A", "B"), kg.EntitiesOf("B", "C"), 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := supervision.Jaccard(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

// ---------------------------------------------------------------------------
// ScorePaths / SelectPaths
// ---------------------------------------------------------------------------

func TestScorePaths_SortsStablyByJaccard(t *testing.T) {
	anchor := kg.EntitiesOf("Q76")
	candidates := []supervision.Candidate{
		{Anchor: anchor, Path: kg.Path{step("spouse", kg.Forward)}},
		{Anchor: anchor, Path: kg.Path{step("educated_at", kg.Forward)}},
		{Anchor: anchor, Path: kg.Path{step("spouse", kg.Forward), step("educated_at", kg.Forward)}},
		{Anchor: anchor, Path: kg.Path{step("award", kg.Forward)}},
	}
	answers := kg.EntitiesOf("Q49122")

	scored, err := supervision.ScorePaths(context.Background(), obamaGraph(), candidates, answers, 0, nil)
	require.NoError(t, err)
	require.Len(t, scored, 4)

	assert.Equal(t, candidates[2].Path, scored[0].Path)
	assert.Equal(t, 1.0, scored[0].Score)
	assert.Equal(t, candidates[1].Path, scored[1].Path)
	assert.Equal(t, 0.5, scored[1].Score)
	assert.Equal(t, kg.EntitiesOf("Q1346110", "Q49122"), scored[1].Deduced)
	// Ties at zero keep input order.
	assert.Equal(t, candidates[0].Path, scored[2].Path)
	assert.Equal(t, candidates[3].Path, scored[3].Path)
	assert.Empty(t, scored[3].Deduced)
}

func TestScorePaths_SkipsFailedDeductions(t *testing.T) {
	g := obamaGraph()
	gw := kg.GatewayFunc(func(ctx context.Context, es []kg.Entity, dir kg.Direction) ([]kg.Edge, error) {
		if kg.NewEntitySet(es...).Contains("Q13133") {
			return nil, sigilerr.New(sigilerr.CodeGraphQueryUpstreamFailure, "down")
		}
		return g.Neighbors(ctx, es, dir)
	})
	candidates := []supervision.Candidate{
		{Anchor: kg.EntitiesOf("Q76"), Path: kg.Path{step("spouse", kg.Forward), step("educated_at", kg.Forward)}},
		{Anchor: kg.EntitiesOf("Q76"), Path: kg.Path{step("educated_at", kg.Forward)}},
	}
	scored, err := supervision.ScorePaths(context.Background(), gw, candidates, kg.EntitiesOf("Q49122"), 0, nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, candidates[1].Path, scored[0].Path)
}

func TestScorePaths_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := supervision.ScorePaths(ctx, obamaGraph(), []supervision.Candidate{
		{Anchor: kg.EntitiesOf("Q76"), Path: kg.Path{step("spouse", kg.Forward)}},
	}, kg.EntitiesOf("Q13133"), 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectPaths(t *testing.T) {
	scored := []supervision.ScoredPath{
		{Path: kg.Path{step("a", kg.Forward)}, Score: 1},
		{Path: kg.Path{step("b", kg.Forward)}, Score: 1},
		{Path: kg.Path{step("c", kg.Forward)}, Score: 0.5},
		{Path: kg.Path{step("d", kg.Forward)}, Score: 0},
	}

	assert.Len(t, supervision.SelectPaths(scored, supervision.SelectionPolicy{Mode: supervision.SelectBest}), 2)
	assert.Len(t, supervision.SelectPaths(scored, supervision.SelectionPolicy{Mode: supervision.SelectAll}), 4)
	assert.Len(t, supervision.SelectPaths(scored, supervision.SelectionPolicy{Mode: supervision.SelectAll, MinScore: 0.5}), 3)
	assert.Empty(t, supervision.SelectPaths(scored[3:], supervision.SelectionPolicy{Mode: supervision.SelectBest, MinScore: 0.1}))
	assert.Empty(t, supervision.SelectPaths(nil, supervision.SelectionPolicy{}))
}

func TestParseSelection(t *testing.T) {
	s, err := supervision.ParseSelection("")
	require.NoError(t, err)
	assert.Equal(t, supervision.SelectBest, s)
	_, err = supervision.ParseSelection("top3")
	assert.True(t, sigilerr.IsInvalidInput(err))
}

// ---------------------------------------------------------------------------
// SampleNegatives
// ---------------------------------------------------------------------------

func TestSampleNegatives_OneExamplePerStep(t *testing.T) {
	path := supervision.ScoredPath{
		Anchor: kg.EntitiesOf("Q76"),
		Path:   kg.Path{step("spouse", kg.Forward), step("educated_at", kg.Forward)},
	}
	examples, err := supervision.SampleNegatives(context.Background(), obamaGraph(), "where did obama's wife study", path,
		supervision.NegativeConfig{Direction: kg.Both})
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "where did obama's wife study [SEP] ", examples[0].Query)
	assert.Equal(t, step("spouse", kg.Forward), examples[0].Positive)
	assert.Equal(t, []kg.Step{step("educated_at", kg.Forward)}, examples[0].Negatives)

	assert.Equal(t, "where did obama's wife study [SEP] spouse", examples[1].Query)
	assert.Equal(t, step("educated_at", kg.Forward), examples[1].Positive)
	assert.Equal(t, []kg.Step{step("spouse", kg.Backward)}, examples[1].Negatives)
}

func TestSampleNegatives_NeverContainsPositive(t *testing.T) {
	g := memgraph.New(
		memgraph.Triple("A", "r", "B"),
		memgraph.Triple("A", "r", "C"),
		memgraph.Triple("D", "r", "A"),
		memgraph.Triple("A", "s", "E"),
	)
	path := supervision.ScoredPath{Anchor: kg.EntitiesOf("A"), Path: kg.Path{step("r", kg.Forward)}}
	examples, err := supervision.SampleNegatives(context.Background(), g, "q", path, supervision.NegativeConfig{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	for _, n := range examples[0].Negatives {
		assert.False(t, n.Same(examples[0].Positive))
	}
	assert.Equal(t, []kg.Step{step("r", kg.Backward), step("s", kg.Forward)}, examples[0].Negatives,
		"the inverse of the positive is a distinct relation")
}

func TestSampleNegatives_NoSiblings(t *testing.T) {
	g := memgraph.New(memgraph.Triple("A", "r", "B"))
	path := supervision.ScoredPath{Anchor: kg.EntitiesOf("A"), Path: kg.Path{step("r", kg.Forward)}}
	examples, err := supervision.SampleNegatives(context.Background(), g, "q", path, supervision.NegativeConfig{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Empty(t, examples[0].Negatives)
}

func TestSampleNegatives_MaxNegativesIsSeeded(t *testing.T) {
	g := memgraph.New(memgraph.Triple("A", "pos", "B"))
	for i := range 20 {
		g.Add(memgraph.Triple("A", fmt.Sprintf("n%02d", i), "X"))
	}
	path := supervision.ScoredPath{Anchor: kg.EntitiesOf("A"), Path: kg.Path{step("pos", kg.Forward)}}
	cfg := supervision.NegativeConfig{MaxNegatives: 5, Seed: 7}

	first, err := supervision.SampleNegatives(context.Background(), g, "q", path, cfg)
	require.NoError(t, err)
	require.Len(t, first[0].Negatives, 5)
	again, err := supervision.SampleNegatives(context.Background(), g, "q", path, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestSampleNegatives_GatewayError(t *testing.T) {
	gw := kg.GatewayFunc(func(context.Context, []kg.Entity, kg.Direction) ([]kg.Edge, error) {
		return nil, errors.New("boom")
	})
	path := supervision.ScoredPath{Anchor: kg.EntitiesOf("A"), Path: kg.Path{step("r", kg.Forward)}}
	_, err := supervision.SampleNegatives(context.Background(), gw, "q", path, supervision.NegativeConfig{})
	assert.Error(t, err)
}

func TestTrainingExample_JSON(t *testing.T) {
	e := supervision.TrainingExample{
		Query:     "q [SEP] ",
		Positive:  kg.Step{Relation: kg.Relation{ID: "P69", Label: "educated at"}, Direction: kg.Forward},
		Negatives: []kg.Step{{Relation: kg.Relation{ID: "P26", Label: "spouse"}, Direction: kg.Backward}},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "q [SEP] ", generic["query"])
	assert.Equal(t, "educated at", generic["positive"])
	assert.Equal(t, []any{"spouse (inverse)"}, generic["negatives"])

	var back supervision.TrainingExample
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e, back)

	err = json.Unmarshal([]byte(`{"query":"q","positive":"x","negatives":[]}`), &back)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeDatasetRecordInvalid))
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func newPipeline(t *testing.T, g kg.Gateway, cfg supervision.Config) *supervision.Pipeline {
	t.Helper()
	f, err := pathfinder.New(g, pathfinder.Config{MaxDepth: 2})
	require.NoError(t, err)
	p, err := supervision.NewPipeline(f, g, cfg, nil)
	require.NoError(t, err)
	return p
}

func TestPipeline_Process(t *testing.T) {
	p := newPipeline(t, obamaGraph(), supervision.DefaultConfig())

	out, err := p.Process(context.Background(), supervision.Sample{
		ID:               "s1",
		Question:         "where did obama study",
		QuestionEntities: []kg.Entity{"Q76"},
		AnswerEntities:   []kg.Entity{"Q49122", "Q1346110"},
	})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	require.Len(t, out.Paths, 2)
	require.Len(t, out.Selected, 1)
	assert.Equal(t, 1.0, out.Selected[0].Score)
	require.Len(t, out.Examples, 1)
	assert.Equal(t, "where did obama study [SEP] ", out.Examples[0].Query)
	assert.Equal(t, step("educated_at", kg.Forward), out.Examples[0].Positive)
	assert.Equal(t, []kg.Step{step("spouse", kg.Forward)}, out.Examples[0].Negatives)
}

func TestPipeline_NoPathIsSkipped(t *testing.T) {
	p := newPipeline(t, obamaGraph(), supervision.DefaultConfig())
	out, err := p.Process(context.Background(), supervision.Sample{
		ID: "s2", Question: "q", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q404"},
	})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, supervision.ReasonNoPath, out.Reason)
	assert.Empty(t, out.Examples)
}

func TestPipeline_InvalidSample(t *testing.T) {
	p := newPipeline(t, obamaGraph(), supervision.DefaultConfig())
	_, err := p.Process(context.Background(), supervision.Sample{ID: "s3", Question: "q"})
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSupervisionInputInvalid))
	assert.Equal(t, "s3", sigilerr.FieldsOf(err)["sample_id"])
}

func TestNewPipeline_RejectsInvalidConfig(t *testing.T) {
	f, err := pathfinder.New(obamaGraph(), pathfinder.Config{MaxDepth: 1})
	require.NoError(t, err)
	_, err = supervision.NewPipeline(f, obamaGraph(), supervision.Config{Selection: "some", MinScore: 2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestPipeline_ProcessBatch(t *testing.T) {
	samples := []supervision.Sample{
		{ID: "a", Question: "where did obama study", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q49122"}},
		{ID: "b", Question: "unreachable", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q404"}},
		{ID: "c", Question: "", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q13133"}},
		{ID: "d", Question: "who is obama married to", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q13133"}},
	}

	for _, discard := range []bool{true, false} {
		t.Run(fmt.Sprintf("discard=%v", discard), func(t *testing.T) {
			cfg := supervision.DefaultConfig()
			cfg.DiscardNoPath = discard
			p := newPipeline(t, obamaGraph(), cfg)

			var ids []string
			sum, err := p.ProcessBatch(context.Background(), samples, 3, func(o *supervision.Outcome) error {
				ids = append(ids, o.Sample.ID)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, supervision.Summary{Total: 4, Processed: 2, Skipped: 1, Failed: 1, Examples: sum.Examples}, sum)
			assert.Positive(t, sum.Examples)
			if discard {
				assert.Equal(t, []string{"a", "d"}, ids)
			} else {
				assert.Equal(t, []string{"a", "b", "d"}, ids)
			}
		})
	}
}

func TestPipeline_ProcessBatchStopsOnEmitError(t *testing.T) {
	p := newPipeline(t, obamaGraph(), supervision.DefaultConfig())
	samples := []supervision.Sample{
		{ID: "a", Question: "q", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q49122"}},
		{ID: "b", Question: "q", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q13133"}},
	}
	boom := errors.New("disk full")
	calls := 0
	_, err := p.ProcessBatch(context.Background(), samples, 2, func(*supervision.Outcome) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
