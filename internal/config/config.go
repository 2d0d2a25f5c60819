// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/srtk/internal/kg"
	"github.com/sigil-dev/srtk/internal/pathfinder"
	"github.com/sigil-dev/srtk/internal/retriever"
	"github.com/sigil-dev/srtk/internal/retry"
	"github.com/sigil-dev/srtk/internal/supervision"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
	"github.com/sigil-dev/srtk/pkg/health"
)

// EnvPrefix is prepended to every environment override, e.g.
// SRTK_RETRIEVAL_BEAM_WIDTH.
const EnvPrefix = "SRTK"

// Config is the top-level srtk configuration.
type Config struct {
	Graph     GraphConfig        `mapstructure:"graph"`
	Scorer    ScorerConfig       `mapstructure:"scorer"`
	Retrieval retriever.Config   `mapstructure:"retrieval"`
	Paths     pathfinder.Config  `mapstructure:"paths"`
	Labeling  supervision.Config `mapstructure:"labeling"`
	Server    ServerConfig       `mapstructure:"server"`
	Labels    LabelsConfig       `mapstructure:"labels"`
	Health    HealthConfig       `mapstructure:"health"`
}

// GraphConfig selects and tunes the graph query gateway.
type GraphConfig struct {
	Backend         string        `mapstructure:"backend"`
	Endpoint        string        `mapstructure:"endpoint"`
	Path            string        `mapstructure:"path"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	EntityPrefix    string        `mapstructure:"entity_prefix"`
	PredicatePrefix string        `mapstructure:"predicate_prefix"`
	LabelLanguage   string        `mapstructure:"label_language"`
	BatchSize       int           `mapstructure:"batch_size"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Retry           retry.Config  `mapstructure:"retry"`
	Cache           CacheConfig   `mapstructure:"cache"`
}

// BackendConfig converts the section into the gateway factory's input.
func (g GraphConfig) BackendConfig() kg.BackendConfig {
	return kg.BackendConfig{
		Backend:         g.Backend,
		Endpoint:        g.Endpoint,
		Path:            g.Path,
		Username:        g.Username,
		Password:        g.Password,
		EntityPrefix:    g.EntityPrefix,
		PredicatePrefix: g.PredicatePrefix,
		LabelLanguage:   g.LabelLanguage,
		BatchSize:       g.BatchSize,
		Concurrency:     g.Concurrency,
		Timeout:         g.Timeout,
	}
}

// CacheConfig controls the Neighbors response cache. An empty backend
// disables caching.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	URL     string        `mapstructure:"url"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
	Size    int           `mapstructure:"size"`
}

// ScorerConfig selects the relevance scorer.
type ScorerConfig struct {
	Backend    string        `mapstructure:"backend"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	CacheSize  int           `mapstructure:"cache_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retry      retry.Config  `mapstructure:"retry"`
	// Scores and Default drive the static backend. Keys are lower-case
	// relation text.
	Scores  map[string]float64 `mapstructure:"scores"`
	Default float64            `mapstructure:"default"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen         string          `mapstructure:"listen"`
	CORSOrigins    []string        `mapstructure:"cors_origins"`
	APIToken       string          `mapstructure:"api_token"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the per-IP request budget. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LabelsConfig points at an optional relation label catalog.
type LabelsConfig struct {
	Catalog string `mapstructure:"catalog"`
}

// HealthConfig controls dependency health tracking.
type HealthConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// Known backend names.
var (
	graphBackends  = []string{"sparql", "sqlite", "memory"}
	cacheBackends  = []string{"", "memory", "redis"}
	scorerBackends = []string{"http", "openai", "google", "static"}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	r := retriever.DefaultConfig()
	p := pathfinder.DefaultConfig()
	l := supervision.DefaultConfig()
	gr := retry.DefaultConfig()

	v.SetDefault("graph.backend", "sparql")
	v.SetDefault("graph.endpoint", "https://query.wikidata.org/sparql")
	v.SetDefault("graph.path", "srtk.db")
	v.SetDefault("graph.entity_prefix", "http://www.wikidata.org/entity/")
	v.SetDefault("graph.predicate_prefix", "http://www.wikidata.org/prop/direct/")
	v.SetDefault("graph.label_language", "en")
	v.SetDefault("graph.batch_size", 50)
	v.SetDefault("graph.concurrency", 4)
	v.SetDefault("graph.timeout", 60*time.Second)
	v.SetDefault("graph.retry.max_attempts", gr.MaxAttempts)
	v.SetDefault("graph.retry.initial_delay", gr.InitialDelay)
	v.SetDefault("graph.retry.max_delay", gr.MaxDelay)
	v.SetDefault("graph.retry.multiplier", gr.Multiplier)
	v.SetDefault("graph.retry.jitter", gr.Jitter)
	v.SetDefault("graph.cache.backend", "memory")
	v.SetDefault("graph.cache.url", "redis://localhost:6379")
	v.SetDefault("graph.cache.prefix", "srtk:")
	v.SetDefault("graph.cache.ttl", time.Hour)
	v.SetDefault("graph.cache.size", 100000)

	v.SetDefault("scorer.backend", "http")
	v.SetDefault("scorer.endpoint", "http://127.0.0.1:8000/score")
	v.SetDefault("scorer.cache_size", 10000)
	v.SetDefault("scorer.timeout", 30*time.Second)
	v.SetDefault("scorer.retry.max_attempts", 2)
	v.SetDefault("scorer.retry.initial_delay", gr.InitialDelay)
	v.SetDefault("scorer.retry.max_delay", gr.MaxDelay)
	v.SetDefault("scorer.retry.multiplier", gr.Multiplier)
	v.SetDefault("scorer.retry.jitter", gr.Jitter)

	v.SetDefault("retrieval.beam_width", r.BeamWidth)
	v.SetDefault("retrieval.max_hops", r.MaxHops)
	v.SetDefault("retrieval.frontier_cap", r.MaxFrontier)
	v.SetDefault("retrieval.direction", string(r.Direction))
	v.SetDefault("retrieval.seed_mode", string(r.SeedMode))
	v.SetDefault("retrieval.score_policy", string(r.ScorePolicy))
	v.SetDefault("retrieval.discount", r.Discount)
	v.SetDefault("retrieval.concurrency", r.Concurrency)

	v.SetDefault("paths.max_depth", p.MaxDepth)
	v.SetDefault("paths.direction", string(p.Direction))
	v.SetDefault("paths.frontier_cap", p.MaxFrontier)
	v.SetDefault("paths.max_paths", p.MaxPaths)

	v.SetDefault("labeling.selection", string(l.Selection))
	v.SetDefault("labeling.min_score", l.MinScore)
	v.SetDefault("labeling.max_negatives", l.MaxNegatives)
	v.SetDefault("labeling.seed", l.Seed)
	v.SetDefault("labeling.discard_no_path", l.DiscardNoPath)
	v.SetDefault("labeling.direction", string(l.Direction))
	v.SetDefault("labeling.frontier_cap", l.FrontierCap)

	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.rate_limit.requests_per_second", 0.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("health.cooldown", health.DefaultCooldown)

	// Credentials default to empty so that env-only values show up in
	// AllKeys and get keyring references resolved.
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("scorer.api_key", "")
	v.SetDefault("server.api_token", "")
}

// SetupEnv makes every key overridable through SRTK_-prefixed variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)
	return v
}

// Load reads path (when non-empty) over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate returns every configuration problem found, or nil.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateGraph()...)
	errs = append(errs, c.validateScorer()...)
	errs = append(errs, c.Retrieval.Validate()...)
	errs = append(errs, c.Paths.Validate()...)
	errs = append(errs, c.Labeling.Validate()...)
	errs = append(errs, c.validateServer()...)
	if c.Health.Cooldown < 0 {
		errs = append(errs, invalid("config: health.cooldown cannot be negative, got %s", c.Health.Cooldown))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, format, args...)
}

func (c *Config) validateGraph() []error {
	var errs []error
	g := c.Graph

	if !slices.Contains(graphBackends, g.Backend) {
		errs = append(errs, invalid("config: graph.backend must be one of [%s], got %q",
			strings.Join(graphBackends, ", "), g.Backend))
	}
	switch g.Backend {
	case "sparql":
		if err := validateURL("graph.endpoint", g.Endpoint); err != nil {
			errs = append(errs, err)
		}
	case "sqlite":
		if g.Path == "" {
			errs = append(errs, invalid("config: graph.path must not be empty for the sqlite backend"))
		}
	}
	if g.BatchSize <= 0 {
		errs = append(errs, invalid("config: graph.batch_size must be positive, got %d", g.BatchSize))
	}
	if g.Concurrency <= 0 {
		errs = append(errs, invalid("config: graph.concurrency must be positive, got %d", g.Concurrency))
	}
	if g.Timeout < 0 {
		errs = append(errs, invalid("config: graph.timeout cannot be negative, got %s", g.Timeout))
	}
	if err := g.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(cacheBackends, g.Cache.Backend) {
		errs = append(errs, invalid("config: graph.cache.backend must be one of [memory, redis] or empty, got %q",
			g.Cache.Backend))
	}
	if g.Cache.Backend == "memory" && g.Cache.Size <= 0 {
		errs = append(errs, invalid("config: graph.cache.size must be positive, got %d", g.Cache.Size))
	}
	if g.Cache.Backend == "redis" && g.Cache.URL == "" {
		errs = append(errs, invalid("config: graph.cache.url must not be empty for the redis cache"))
	}
	if g.Cache.TTL < 0 {
		errs = append(errs, invalid("config: graph.cache.ttl cannot be negative, got %s", g.Cache.TTL))
	}

	return errs
}

func (c *Config) validateScorer() []error {
	var errs []error
	s := c.Scorer

	if !slices.Contains(scorerBackends, s.Backend) {
		errs = append(errs, invalid("config: scorer.backend must be one of [%s], got %q",
			strings.Join(scorerBackends, ", "), s.Backend))
	}
	switch s.Backend {
	case "http":
		if err := validateURL("scorer.endpoint", s.Endpoint); err != nil {
			errs = append(errs, err)
		}
	case "openai", "google":
		if s.APIKey == "" {
			errs = append(errs, invalid("config: scorer.api_key must be set for the %s backend", s.Backend))
		}
	}
	if s.Dimensions < 0 {
		errs = append(errs, invalid("config: scorer.dimensions cannot be negative, got %d", s.Dimensions))
	}
	if s.CacheSize < 0 {
		errs = append(errs, invalid("config: scorer.cache_size cannot be negative, got %d", s.CacheSize))
	}
	if s.Timeout < 0 {
		errs = append(errs, invalid("config: scorer.timeout cannot be negative, got %s", s.Timeout))
	}
	if err := s.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, invalid("config: server.request_timeout cannot be negative, got %s", c.Server.RequestTimeout))
	}
	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 || (rl.RequestsPerSecond > 0 && rl.Burst <= 0) {
		errs = append(errs, invalid("config: server.rate_limit needs a non-negative rate and a positive burst, got %g/%d",
			rl.RequestsPerSecond, rl.Burst))
	}
	if err := validateListen(c.Server.Listen); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateListen(listen string) error {
	if listen == "" {
		return invalid("config: server.listen must not be empty")
	}

	// host can be empty (":8080").
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return invalid("config: server.listen must be a valid host:port address, got %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return invalid("config: server.listen port must be a number, got %q", portStr)
	}
	if port < 1 || port > 65535 {
		return invalid("config: server.listen port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return invalid("config: %s must not be empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("config: %s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}
