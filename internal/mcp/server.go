// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package mcp exposes subgraph retrieval and path search as Model Context
// Protocol tools.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer registers the retrieval tools on a new MCP server.
func NewServer(service *Service, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "srtk",
		Version: version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "retrieve_subgraph",
		Description: "Retrieve the knowledge graph subgraph most relevant to a question, starting from linked seed entities.",
	}, service.Retrieve)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "find_paths",
		Description: "Find the shortest relation paths connecting source entities to target entities.",
	}, service.FindPaths)

	return s
}

// ServeStdio serves s on stdin/stdout until ctx is cancelled or the client
// disconnects.
func ServeStdio(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}
