// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health tracks the availability of remote dependencies such as the
// graph endpoint and the scoring service.
package health

import (
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// Metrics is a point-in-time snapshot of a dependency's health, safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// DefaultCooldown is how long a dependency stays unhealthy after a failure.
const DefaultCooldown = 30 * time.Second

// Tracker starts healthy. A failure marks it unhealthy for the cooldown
// period; the next success or the end of the cooldown restores it.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewTracker returns a healthy tracker. cooldown must be positive.
func NewTracker(cooldown time.Duration) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &Tracker{healthy: true, cooldown: cooldown, nowFunc: time.Now}, nil
}

// MustTracker is NewTracker with DefaultCooldown.
func MustTracker() *Tracker {
	t, _ := NewTracker(DefaultCooldown)
	return t
}

// The caller must hold at least h.mu.RLock.
func (h *Tracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *Tracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *Tracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *Tracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// Record dispatches on err.
func (h *Tracker) Record(err error) {
	if err != nil {
		h.RecordFailure()
		return
	}
	h.RecordSuccess()
}

// SetNowFunc overrides the time source (for testing).
func (h *Tracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Snapshot returns the current state.
func (h *Tracker) Snapshot() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := Metrics{FailureCount: h.failureCount, Available: h.isHealthyLocked()}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		end := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &end
	}
	return m
}
