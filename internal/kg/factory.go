// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kg

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Backend is a Gateway that owns resources.
type Backend interface {
	Gateway
	io.Closer
}

// BackendConfig carries the settings a backend factory may read. Each backend
// ignores the fields it does not use.
type BackendConfig struct {
	Backend         string
	Endpoint        string
	Path            string
	Username        string
	Password        string
	EntityPrefix    string
	PredicatePrefix string
	LabelLanguage   string
	BatchSize       int
	Concurrency     int
	Timeout         time.Duration
}

// BackendFactory opens a named backend.
type BackendFactory func(ctx context.Context, cfg BackendConfig) (Backend, error)

var (
	backends   = map[string]BackendFactory{}
	backendsMu sync.RWMutex
)

// RegisterBackend registers a factory under name. Backend packages call this
// from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends lists registered backend names in order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the backend selected by cfg.Backend, defaulting to "sparql".
func Open(ctx context.Context, cfg BackendConfig) (Backend, error) {
	name := cfg.Backend
	if name == "" {
		name = "sparql"
	}

	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeGraphBackendUnsupported,
			"unsupported graph backend", sigilerr.FieldBackend(name))
	}

	return factory(ctx, cfg)
}

// NopCloser turns a Gateway without resources into a Backend.
func NopCloser(gw Gateway) Backend {
	return nopCloser{gw}
}

type nopCloser struct{ Gateway }

func (nopCloser) Close() error { return nil }
