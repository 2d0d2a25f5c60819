// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rediscache shares neighborhood responses across processes through Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Options configures the connection.
type Options struct {
	URL            string
	Prefix         string
	TTL            time.Duration
	ConnectTimeout time.Duration
}

// Cache implements kg.Cache on top of Redis strings holding JSON edge lists.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ kg.Cache = (*Cache)(nil)

// New connects to opts.URL and pings the server.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "srtk:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "parsing redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeGraphCacheFailure, "connecting to redis: %w", err)
	}

	return &Cache{client: client, prefix: opts.Prefix, ttl: opts.TTL, logger: slog.Default()}, nil
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) GetEdges(ctx context.Context, keys []string) (map[string][]kg.Edge, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}

	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeGraphCacheFailure, "redis mget: %w", err)
	}

	out := make(map[string][]kg.Edge, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var edges []kg.Edge
		if err := json.Unmarshal([]byte(s), &edges); err != nil {
			c.logger.Warn("dropping corrupt cache entry", slog.String("key", full[i]), slog.String("error", err.Error()))
			continue
		}
		out[keys[i]] = edges
	}
	return out, nil
}

func (c *Cache) SetEdges(ctx context.Context, entries map[string][]kg.Edge) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for k, edges := range entries {
		if edges == nil {
			edges = []kg.Edge{}
		}
		data, err := json.Marshal(edges)
		if err != nil {
			return sigilerr.Errorf(sigilerr.CodeGraphCacheFailure, "encoding cache entry: %w", err)
		}
		pipe.Set(ctx, c.prefix+k, data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return sigilerr.Errorf(sigilerr.CodeGraphCacheFailure, "redis pipeline: %w", err)
	}
	return nil
}
