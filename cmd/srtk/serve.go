// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"

	srtkmcp "github.com/sigil-dev/srtk/internal/mcp"
	"github.com/sigil-dev/srtk/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval HTTP API",
		Long:  "Wire the graph gateway, scorer and engine and serve them over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	cmd.Flags().String("listen", "", "override server.listen (host:port)")
	bindFlag(cmd, "listen", "server.listen")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := WireEngine(ctx, cfg, a.logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	svc, err := server.NewServices(eng.Retriever, eng.Finder, eng.Pipeline,
		server.WithHealth(eng.Metrics), server.WithMetrics(eng.Metrics.Handler()))
	if err != nil {
		return err
	}

	if cfg.Server.APIToken == "" {
		a.logger.Warn("authentication disabled: no server.api_token configured")
	}

	server.Version = version
	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Server.Listen,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		APIToken:       cfg.Server.APIToken,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Logger: a.logger,
	}, svc)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve retrieval tools over MCP on stdio",
		Long:  "Expose retrieve_subgraph and find_paths as Model Context Protocol tools on stdin/stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := WireEngine(ctx, cfg, a.logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			svc := srtkmcp.NewService(eng.Retriever, eng.Finder, a.logger)
			return srtkmcp.ServeStdio(ctx, srtkmcp.NewServer(svc, version))
		},
	}
}
