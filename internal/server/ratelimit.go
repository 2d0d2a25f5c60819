// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// RateLimitConfig configures per-IP token buckets. A zero rate disables
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of tracked IPs. Zero means 10000.
	MaxVisitors int
}

// Validate checks the limits.
func (c RateLimitConfig) Validate() error {
	switch {
	case c.RequestsPerSecond < 0:
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	case c.RequestsPerSecond > 0 && c.Burst <= 0:
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)", c.Burst, c.RequestsPerSecond)
	case c.MaxVisitors < 0:
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	return nil
}

// idleAfter is how long an unused bucket is kept.
const idleAfter = 10 * time.Minute

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type limiter struct {
	cfg    RateLimitConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*bucket
}

// newLimiter starts a sweeper that exits when done is closed.
func newLimiter(cfg RateLimitConfig, logger *slog.Logger, done <-chan struct{}) *limiter {
	if cfg.MaxVisitors == 0 {
		cfg.MaxVisitors = 10000
	}
	l := &limiter{cfg: cfg, logger: logger, now: time.Now, visitors: make(map[string]*bucket)}
	if cfg.RequestsPerSecond > 0 && done != nil {
		go l.sweep(done)
	}
	return l
}

func (l *limiter) sweep(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			l.evictIdle()
			l.mu.Unlock()
		case <-done:
			return
		}
	}
}

// evictIdle drops idle buckets, then the least recently seen ones until the
// map fits MaxVisitors. The caller holds mu.
func (l *limiter) evictIdle() {
	now := l.now()
	for ip, b := range l.visitors {
		if now.Sub(b.lastSeen) > idleAfter {
			delete(l.visitors, ip)
		}
	}
	for len(l.visitors) > l.cfg.MaxVisitors {
		var oldestIP string
		var oldest time.Time
		for ip, b := range l.visitors {
			if oldestIP == "" || b.lastSeen.Before(oldest) {
				oldestIP, oldest = ip, b.lastSeen
			}
		}
		delete(l.visitors, oldestIP)
	}
}

// allow takes one token from ip's bucket.
func (l *limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= l.cfg.MaxVisitors {
			l.evictIdle()
		}
		b = &bucket{tokens: float64(l.cfg.Burst), lastSeen: now}
		l.visitors[ip] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
	b.tokens = min(b.tokens, float64(l.cfg.Burst))
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	if l.cfg.RequestsPerSecond <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Bucket by IP, not by connection.
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			l.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
