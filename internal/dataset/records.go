// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package dataset

import (
	"github.com/google/uuid"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/supervision"
)

// Sample is an input record: {"id", "question", "question_entities", "answer_entities"}.
type Sample = supervision.Sample

// EnsureID gives s a random id when it has none.
func EnsureID(s Sample) Sample {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return s
}

// ScoredSteps is a step sequence with its score.
type ScoredSteps struct {
	Steps kg.Path `json:"steps"`
	Score float64 `json:"score"`
}

// PathRecord is a sample extended with its connecting and scored paths.
type PathRecord struct {
	Sample
	Paths       []pathfinder.ConnectingPath `json:"paths"`
	ScoredPaths []ScoredSteps               `json:"scored_paths"`
	Status      string                      `json:"status"`
	Partial     bool                        `json:"partial,omitempty"`
}

// NewPathRecord builds the record for one pipeline outcome.
func NewPathRecord(o *supervision.Outcome) PathRecord {
	rec := PathRecord{
		Sample:      o.Sample,
		Paths:       o.Paths,
		ScoredPaths: make([]ScoredSteps, len(o.Scored)),
		Status:      pathfinder.StatusOK,
		Partial:     o.Partial,
	}
	if rec.Paths == nil {
		rec.Paths = []pathfinder.ConnectingPath{}
	}
	if o.Skipped {
		rec.Status = o.Reason
	}
	for i, s := range o.Scored {
		rec.ScoredPaths[i] = ScoredSteps{Steps: s.Path, Score: s.Score}
	}
	return rec
}

// RetrievalRecord is the output of the retrieve command.
type RetrievalRecord struct {
	ID            string        `json:"id"`
	Question      string        `json:"question"`
	Status        string        `json:"status"`
	Paths         []ScoredSteps `json:"paths"`
	SubgraphEdges []kg.Edge     `json:"subgraph_edges"`
	HopsCompleted int           `json:"hops_completed"`
	Error         string        `json:"error,omitempty"`
}

// NewRetrievalRecord builds the record for one retrieval. res may be nil
// when the retrieval failed before producing anything.
func NewRetrievalRecord(s Sample, res *retriever.Result, err error) RetrievalRecord {
	rec := RetrievalRecord{
		ID:            s.ID,
		Question:      s.Question,
		Status:        retriever.StatusNoPath,
		Paths:         []ScoredSteps{},
		SubgraphEdges: []kg.Edge{},
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if res == nil {
		return rec
	}
	rec.Status = res.Status
	rec.HopsCompleted = res.HopsCompleted
	rec.SubgraphEdges = res.Subgraph
	for _, p := range res.Paths {
		rec.Paths = append(rec.Paths, ScoredSteps{Steps: p.Path, Score: p.Score})
	}
	return rec
}
