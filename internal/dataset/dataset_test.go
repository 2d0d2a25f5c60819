// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package dataset_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigil-dev/srtk/internal/dataset"
	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samples = `{"id":"s1","question":"where did obama study","question_entities":["Q76"],"answer_entities":["Q49122"]}

{"question":"who is obama married to","question_entities":["Q76"],"answer_entities":["Q13133"]}
`

func TestReadAll_Samples(t *testing.T) {
	got, err := dataset.ReadAll[dataset.Sample](strings.NewReader(samples))
	require.NoError(t, err)
	require.Len(t, got, 2, "blank lines are ignored")
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, []kg.Entity{"Q49122"}, got[0].AnswerEntities)

	assert.Empty(t, got[1].ID)
	withID := dataset.EnsureID(got[1])
	assert.Len(t, withID.ID, 36)
	assert.Equal(t, "s1", dataset.EnsureID(got[0]).ID)
}

func TestRead_MalformedLine(t *testing.T) {
	_, err := dataset.ReadAll[dataset.Sample](strings.NewReader("{\"id\":\"ok\"}\n{not json\n"))
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeDatasetRecordInvalid))
	assert.Equal(t, 2, sigilerr.FieldsOf(err)["line"])
}

func TestRead_CallbackErrorStops(t *testing.T) {
	boom := errors.New("stop")
	n := 0
	err := dataset.Read(strings.NewReader(samples), func(dataset.Sample) error {
		n++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := dataset.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"query": "a <b> & c"}))
	require.NoError(t, w.Write(map[string]string{"query": "d"}))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"query\":\"a <b> & c\"}\n{\"query\":\"d\"}\n", string(data))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := dataset.ReadFile[dataset.Sample](filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeDatasetIOFailure))
}

func TestRetrievalRecord_Format(t *testing.T) {
	res := &retriever.Result{
		Status:        retriever.StatusOK,
		HopsCompleted: 1,
		Paths: []retriever.ScoredPath{{
			Path:  kg.Path{{Relation: kg.Relation{ID: "educated_at"}, Direction: kg.Forward}},
			Score: 1,
		}},
		Subgraph: []kg.Edge{memgraph.Triple("Q76", "educated_at", "Q49122")},
	}
	rec := dataset.NewRetrievalRecord(dataset.Sample{ID: "s1", Question: "q"}, res, nil)

	var buf bytes.Buffer
	w := dataset.NewWriter(&buf)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	assert.JSONEq(t, `{
		"id": "s1",
		"question": "q",
		"status": "ok",
		"hops_completed": 1,
		"paths": [{"steps": [{"relation": "educated_at", "direction": "forward"}], "score": 1}],
		"subgraph_edges": [{"source": "Q76", "relation": "educated_at", "target": "Q49122"}]
	}`, buf.String())
}

func TestRetrievalRecord_NilResult(t *testing.T) {
	rec := dataset.NewRetrievalRecord(dataset.Sample{ID: "s1"}, nil, errors.New("boom"))
	assert.Equal(t, retriever.StatusNoPath, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.NotNil(t, rec.Paths)
	assert.NotNil(t, rec.SubgraphEdges)
}

func TestPathRecord_FlattensSample(t *testing.T) {
	out := &supervision.Outcome{
		Sample: dataset.Sample{ID: "s1", Question: "q", QuestionEntities: []kg.Entity{"Q76"}, AnswerEntities: []kg.Entity{"Q49122"}},
		Paths: []pathfinder.ConnectingPath{{
			Source:   "Q76",
			Target:   "Q49122",
			Steps:    kg.Path{{Relation: kg.Relation{ID: "educated_at"}, Direction: kg.Forward}},
			Entities: []kg.Entity{"Q76", "Q49122"},
		}},
		Scored: []supervision.ScoredPath{{
			Path:  kg.Path{{Relation: kg.Relation{ID: "educated_at"}, Direction: kg.Forward}},
			Score: 0.5,
		}},
	}
	data, err := json.Marshal(dataset.NewPathRecord(out))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "s1", generic["id"])
	assert.Equal(t, []any{"Q76"}, generic["question_entities"])
	assert.Equal(t, "ok", generic["status"])
	assert.Len(t, generic["paths"], 1)
	assert.Len(t, generic["scored_paths"], 1)

	skipped := dataset.NewPathRecord(&supervision.Outcome{Skipped: true, Reason: supervision.ReasonNoPath})
	assert.Equal(t, supervision.ReasonNoPath, skipped.Status)
	assert.NotNil(t, skipped.Paths)
}
