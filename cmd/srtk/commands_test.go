// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigil-dev/srtk/internal/dataset"
	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/kg/memgraph"
	"github.com/sigil-dev/srtk/internal/kg/sqlite"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/secrets"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// retrieve
// ---------------------------------------------------------------------------

func TestRetrieveCommand(t *testing.T) {
	dir, cfgPath := fixture(t)
	samples := writeFile(t, dir, "samples.jsonl", fixtureSamples)
	out := filepath.Join(dir, "retrieved.jsonl")

	_, _, err := execute(t, "retrieve", "-c", cfgPath, "-i", samples, "-o", out)
	require.NoError(t, err)

	recs, err := dataset.ReadFile[dataset.RetrievalRecord](out)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	rec := recs[0]
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, retriever.StatusOK, rec.Status)
	assert.Equal(t, 1, rec.HopsCompleted)
	require.Len(t, rec.Paths, 1)
	assert.Equal(t, "educated_at", rec.Paths[0].Steps.Text())
	assert.InDelta(t, 0.9, rec.Paths[0].Score, 1e-9)
	assert.Equal(t, []kg.Edge{memgraph.Triple("Q76", "educated_at", "Q49122")}, rec.SubgraphEdges)
}

func TestRetrieveCommand_WritesStdout(t *testing.T) {
	dir, cfgPath := fixture(t)
	samples := writeFile(t, dir, "samples.jsonl",
		`{"question":"who did obama marry","question_entities":["Q76"],"answer_entities":["Q13133"]}`+"\n")

	stdout, _, err := execute(t, "retrieve", "-c", cfgPath, "-i", samples)
	require.NoError(t, err)

	recs, err := dataset.ReadAll[dataset.RetrievalRecord](strings.NewReader(stdout))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID, "records without an id get one")
}

func TestRetrieveCommand_ConcurrentKeepsInputOrder(t *testing.T) {
	dir, cfgPath := fixture(t)
	var lines []string
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		lines = append(lines, `{"id":"`+id+`","question":"q","question_entities":["Q76"],"answer_entities":["Q49122"]}`)
	}
	samples := writeFile(t, dir, "samples.jsonl", strings.Join(lines, "\n")+"\n")
	out := filepath.Join(dir, "retrieved.jsonl")

	_, _, err := execute(t, "retrieve", "-c", cfgPath, "-i", samples, "-o", out, "--concurrency", "3")
	require.NoError(t, err)

	recs, err := dataset.ReadFile[dataset.RetrievalRecord](out)
	require.NoError(t, err)
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
		assert.Equal(t, retriever.StatusOK, r.Status)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, ids)
}

func TestRetrieveCommand_RequiresInput(t *testing.T) {
	_, cfgPath := fixture(t)

	_, _, err := execute(t, "retrieve", "-c", cfgPath)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// search-paths and preprocess
// ---------------------------------------------------------------------------

func TestSearchPathsCommand(t *testing.T) {
	dir, cfgPath := fixture(t)
	samples := writeFile(t, dir, "samples.jsonl", fixtureSamples)
	out := filepath.Join(dir, "paths.jsonl")

	_, stderr, err := execute(t, "search-paths", "-c", cfgPath, "-i", samples, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "processed 1, skipped 1, failed 0, total 2")

	recs, err := dataset.ReadFile[dataset.PathRecord](out)
	require.NoError(t, err)
	require.Len(t, recs, 1, "samples without a path are discarded")

	rec := recs[0]
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, pathfinder.StatusOK, rec.Status)
	require.Len(t, rec.Paths, 1)
	assert.Equal(t, []kg.Entity{"Q76", "Q49122"}, rec.Paths[0].Entities)
	require.Len(t, rec.ScoredPaths, 1)
	assert.InDelta(t, 1.0, rec.ScoredPaths[0].Score, 1e-9)
}

func TestPreprocessCommand(t *testing.T) {
	dir, cfgPath := fixture(t)
	samples := writeFile(t, dir, "samples.jsonl", fixtureSamples)
	out := filepath.Join(dir, "train.jsonl")

	_, stderr, err := execute(t, "preprocess", "-c", cfgPath, "-i", samples, "-o", out, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, stderr, "(1 examples)")

	examples, err := dataset.ReadFile[supervision.TrainingExample](out)
	require.NoError(t, err)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, "educated_at", ex.Positive.Text())
	require.Len(t, ex.Negatives, 1)
	assert.Equal(t, "spouse", ex.Negatives[0].Text())
}

func TestPreprocessCommand_RejectsBadSelection(t *testing.T) {
	dir, cfgPath := fixture(t)
	samples := writeFile(t, dir, "samples.jsonl", fixtureSamples)

	_, _, err := execute(t, "preprocess", "-c", cfgPath, "-i", samples, "--selection", "worst")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// load
// ---------------------------------------------------------------------------

func TestLoadCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	db := filepath.Join(dir, "graph.db")
	triples := writeFile(t, dir, "triples.tsv", fixtureTriples)
	extra := writeFile(t, dir, "extra.jsonl", `{"source":"Q13133","relation":"spouse","target":"Q76"}`+"\n")
	labels := writeFile(t, dir, "labels.yaml", "relations:\n  educated_at: educated at\n")

	out, _, err := execute(t, "load", "--db", db, "--labels", labels, triples, extra)
	require.NoError(t, err)
	assert.Contains(t, out, "4 triples")

	// Loading the same file again adds nothing.
	out, _, err = execute(t, "load", "--db", db, triples)
	require.NoError(t, err)
	assert.Contains(t, out, "4 triples")

	store, err := sqlite.Open(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	got, err := store.RelationLabels(context.Background(), []string{"educated_at", "spouse"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"educated_at": "educated at"}, got)
}

func TestLoadCommand_NothingToLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	_, _, err := execute(t, "load", "--db", filepath.Join(dir, "graph.db"))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
}

func TestLoadCommand_MalformedTriples(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	bad := writeFile(t, dir, "bad.tsv", "Q76\teducated_at\n")

	_, _, err := execute(t, "load", "--db", filepath.Join(dir, "graph.db"), bad)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeDatasetRecordInvalid))
}

// ---------------------------------------------------------------------------
// secret
// ---------------------------------------------------------------------------

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // "service/key" -> value
}

func (m *mockSecretStore) Set(service, key, value string) error {
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Get(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func useMockSecrets(t *testing.T) *mockSecretStore {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	m := &mockSecretStore{data: make(map[string]string)}
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = orig })
	return m
}

func TestSecretCommands(t *testing.T) {
	m := useMockSecrets(t)

	out, _, err := execute(t, "secret", "set", "openai-api-key", "sk-test")
	require.NoError(t, err)
	assert.Contains(t, out, "keyring://openai-api-key")
	assert.Equal(t, "sk-test", m.data["srtk/openai-api-key"])

	out, _, err = execute(t, "secret", "get", "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test\n", out)

	out, _, err = execute(t, "secret", "delete", "openai-api-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted secret: openai-api-key")

	_, _, err = execute(t, "secret", "get", "openai-api-key")
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestSecretSet_ReadsStdin(t *testing.T) {
	m := useMockSecrets(t)

	root := NewRootCmd()
	root.SetIn(strings.NewReader("from-stdin\n"))
	root.SetOut(new(strings.Builder))
	root.SetArgs([]string{"secret", "set", "token"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "from-stdin", m.data["srtk/token"])
}

func TestSecretReferenceResolvedInConfig(t *testing.T) {
	dir, cfgPath := fixture(t)
	m := &mockSecretStore{data: map[string]string{}}
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = orig })

	samples := writeFile(t, dir, "samples.jsonl", fixtureSamples)
	t.Setenv("SRTK_GRAPH_PASSWORD", "keyring://sparql-password")

	_, _, err := execute(t, "retrieve", "-c", cfgPath, "-i", samples, "-o", filepath.Join(dir, "out.jsonl"))
	require.Error(t, err, "an unresolvable reference fails startup")
	assert.Contains(t, err.Error(), "graph.password")

	m.data["srtk/sparql-password"] = "hunter2"
	_, _, err = execute(t, "retrieve", "-c", cfgPath, "-i", samples, "-o", filepath.Join(dir, "out.jsonl"))
	assert.NoError(t, err)
}
