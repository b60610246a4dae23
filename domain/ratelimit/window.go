// Package ratelimit provides a pure sliding-window rate limit algorithm.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// WindowState holds the request timestamps still inside the window for one
// key (value type). Callers persist it between checks.
type WindowState struct {
	Hits []time.Time
}

// CheckResult is the outcome of a rate limit check (value type).
type CheckResult struct {
	Allowed   bool
	Remaining int       // Requests remaining in window
	ResetAt   time.Time // When the oldest counted hit leaves the window
	Reason    string    // If not allowed, why
}

// Config holds rate limit configuration (value type).
type Config struct {
	Limit  int           // Requests per window
	Window time.Duration // Window duration
}

// DefaultConfig is the ingestion guard: 100 requests per IP per minute.
func DefaultConfig() Config {
	return Config{Limit: 100, Window: time.Minute}
}

// Reasons for denial.
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
)

// Check performs a sliding-window rate limit check.
// This is a PURE function - no side effects, deterministic.
//
// Hits older than now-window are pruned, the remainder counted, and the
// request rejected when the count has reached the limit. The returned state
// must be persisted by the caller.
func Check(state WindowState, cfg Config, now time.Time) (CheckResult, WindowState) {
	cutoff := now.Add(-cfg.Window)

	kept := state.Hits[:0:0]
	for _, hit := range state.Hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	state.Hits = kept

	if len(state.Hits) >= cfg.Limit {
		return CheckResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt(state, cfg),
			Reason:    ReasonLimitExceeded,
		}, state
	}

	state.Hits = append(state.Hits, now)
	return CheckResult{
		Allowed:   true,
		Remaining: cfg.Limit - len(state.Hits),
		ResetAt:   resetAt(state, cfg),
	}, state
}

// resetAt is when the oldest surviving hit ages out of the window.
func resetAt(state WindowState, cfg Config) time.Time {
	if len(state.Hits) == 0 {
		return time.Time{}
	}
	return state.Hits[0].Add(cfg.Window)
}

// Expired reports whether a persisted state holds no hits newer than
// now-window and can be dropped by store cleanup.
func Expired(state WindowState, cfg Config, now time.Time) bool {
	cutoff := now.Add(-cfg.Window)
	for _, hit := range state.Hits {
		if hit.After(cutoff) {
			return false
		}
	}
	return true
}
