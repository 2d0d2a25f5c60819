// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package retriever

import (
	"github.com/sigil-dev/srtk/internal/kg"
	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// SeedMode controls how question entities form the initial beam.
type SeedMode string

const (
	// SeedJoint starts from a single item whose frontier holds every seed.
	SeedJoint SeedMode = "joint"
	// SeedPerSeed starts one item per seed entity.
	SeedPerSeed SeedMode = "per_seed"
)

// ScorePolicy controls how hop scores accumulate along a path.
type ScorePolicy string

const (
	// ScoreAdditive adds each hop's score to its parent's.
	ScoreAdditive ScorePolicy = "additive"
	// ScoreDiscounted scales hop h's score by Discount^(h-1) before adding.
	ScoreDiscounted ScorePolicy = "discounted"
)

// Config holds beam search parameters.
type Config struct {
	BeamWidth   int          `mapstructure:"beam_width"`
	MaxHops     int          `mapstructure:"max_hops"`
	MaxFrontier int          `mapstructure:"frontier_cap"`
	Direction   kg.Direction `mapstructure:"direction"`
	SeedMode    SeedMode     `mapstructure:"seed_mode"`
	ScorePolicy ScorePolicy  `mapstructure:"score_policy"`
	Discount    float64      `mapstructure:"discount"`
	Concurrency int          `mapstructure:"concurrency"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BeamWidth:   10,
		MaxHops:     2,
		MaxFrontier: 1000,
		Direction:   kg.Both,
		SeedMode:    SeedJoint,
		ScorePolicy: ScoreAdditive,
		Discount:    1,
		Concurrency: 4,
	}
}

// Validate returns every configuration problem found, or nil.
func (c Config) Validate() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeRetrieverConfigInvalid, format, args...))
	}

	if c.BeamWidth <= 0 {
		invalid("retrieval.beam_width must be positive, got %d", c.BeamWidth)
	}
	if c.MaxHops <= 0 {
		invalid("retrieval.max_hops must be positive, got %d", c.MaxHops)
	}
	if c.MaxFrontier <= 0 {
		invalid("retrieval.frontier_cap must be positive, got %d", c.MaxFrontier)
	}
	if _, err := kg.ParseDirection(string(c.Direction)); err != nil {
		invalid("retrieval.direction: unknown value %q", c.Direction)
	}
	switch c.SeedMode {
	case "", SeedJoint, SeedPerSeed:
	default:
		invalid("retrieval.seed_mode: unknown value %q", c.SeedMode)
	}
	switch c.ScorePolicy {
	case "", ScoreAdditive:
	case ScoreDiscounted:
		if c.Discount <= 0 || c.Discount > 1 {
			invalid("retrieval.discount must be in (0, 1], got %g", c.Discount)
		}
	default:
		invalid("retrieval.score_policy: unknown value %q", c.ScorePolicy)
	}
	if c.Concurrency < 0 {
		invalid("retrieval.concurrency cannot be negative, got %d", c.Concurrency)
	}
	return errs
}

func (c Config) normalized() Config {
	c.Direction, _ = kg.ParseDirection(string(c.Direction))
	if c.SeedMode == "" {
		c.SeedMode = SeedJoint
	}
	if c.ScorePolicy == "" {
		c.ScorePolicy = ScoreAdditive
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	return c
}
