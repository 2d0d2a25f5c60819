// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package mcp

// --- Tool arguments ---

type RetrieveArgs struct {
	Question string   `json:"question" jsonschema:"The natural-language question"`
	Seeds    []string `json:"seeds" jsonschema:"Entity identifiers linked from the question, e.g. Q76"`
}

type FindPathsArgs struct {
	Sources []string `json:"sources" jsonschema:"Entity identifiers to start from"`
	Targets []string `json:"targets" jsonschema:"Entity identifiers to reach"`
}

// --- Tool results ---

// RetrievedPath is one beam path. Steps are rendered as relation text,
// with " (inverse)" marking steps walked against the edge.
type RetrievedPath struct {
	Steps []string `json:"steps"`
	Score float64  `json:"score"`
}

type Triple struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

type RetrieveResult struct {
	Status        string          `json:"status"`
	HopsCompleted int             `json:"hops_completed"`
	Paths         []RetrievedPath `json:"paths"`
	Triples       []Triple        `json:"triples"`
}

type ConnectingPath struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Steps    []string `json:"steps"`
	Entities []string `json:"entities"`
}

type FindPathsResult struct {
	Status    string           `json:"status"`
	Depth     int              `json:"depth"`
	Partial   bool             `json:"partial"`
	Truncated bool             `json:"truncated"`
	Paths     []ConnectingPath `json:"paths"`
}
