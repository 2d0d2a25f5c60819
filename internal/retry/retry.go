// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retry runs an operation under bounded exponential backoff with jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Config controls the backoff schedule. MaxAttempts counts the first call.
type Config struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       bool          `mapstructure:"jitter"`
}

// DefaultConfig returns the schedule used for graph queries.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate reports configuration problems.
func (c Config) Validate() error {
	switch {
	case c.InitialDelay < 0:
		return sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "retry: initial_delay cannot be negative")
	case c.MaxDelay < 0:
		return sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "retry: max_delay cannot be negative")
	case c.Multiplier < 0:
		return sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "retry: multiplier cannot be negative")
	case c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay:
		return sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "retry: max_delay must be >= initial_delay")
	}
	return nil
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempts run out. The last error is returned unchanged so its code survives.
// A nil retryable retries every error. Context errors are never retried.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn func(context.Context) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.normalized()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(withJitter(delay, cfg.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}

	return lastErr
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, retryable, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// withJitter adds up to 25% on top of d.
func withJitter(d time.Duration, enabled bool) time.Duration {
	if !enabled || d < 4 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(d/4)))
}
