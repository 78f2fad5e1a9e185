// Package ratelimit enforces per-tool sliding-window request quotas shared
// across all concurrent sessions.
package ratelimit

import (
	"sync"
	"time"

	"github.com/appforge-ai/appforge/internal/guard"
)

// Limit is the quota for one tool.
type Limit struct {
	MaxRequests int           `json:"maxRequests"`
	Window      time.Duration `json:"window"`
}

// Config holds per-tool limits plus the policy for tools with no configured
// limit. AllowUnlisted defaults to true, matching the legacy fail-open
// behavior for trusted internal tools; operators can flip it.
type Config struct {
	Limits        map[string]Limit
	AllowUnlisted bool
}

// DefaultConfig returns the stock quotas: 10 req/60s for search-class tools
// and 5 req/60s for generation-class tools.
func DefaultConfig() Config {
	return Config{
		Limits: map[string]Limit{
			"search_files": {MaxRequests: 10, Window: time.Minute},
			"fetch_url":    {MaxRequests: 10, Window: time.Minute},
			"generate":     {MaxRequests: 5, Window: time.Minute},
		},
		AllowUnlisted: true,
	}
}

// Limiter implements guard.QuotaChecker with a lazily pruned sliding window
// per tool. Check and record happen under one lock so two concurrent
// sessions can never both observe "under quota" when only one slot remains.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	windows map[string][]time.Time
	now     func() time.Time
}

// New creates a limiter from the given config.
func New(config Config) *Limiter {
	if config.Limits == nil {
		config.Limits = make(map[string]Limit)
	}
	return &Limiter{
		config:  config,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// CheckLimit atomically checks the tool's window and records the request if
// it is allowed. A tool without a configured limit follows the unlisted
// policy and is never recorded.
func (l *Limiter) CheckLimit(tool string) guard.QuotaDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.config.Limits[tool]
	if !ok || limit.MaxRequests <= 0 {
		return guard.QuotaDecision{Allowed: l.config.AllowUnlisted}
	}

	now := l.now()
	cutoff := now.Add(-limit.Window)

	// Lazy prune: drop timestamps that fell out of the window.
	window := l.windows[tool]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit.MaxRequests {
		l.windows[tool] = kept
		oldest := kept[0]
		wait := oldest.Add(limit.Window).Sub(now)
		return guard.QuotaDecision{RetryAfter: ceilSeconds(wait)}
	}

	l.windows[tool] = append(kept, now)
	return guard.QuotaDecision{Allowed: true}
}

// SetClock overrides the time source for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// ceilSeconds converts a duration to whole seconds, rounding up.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
