// Package ratelimit tracks backend rate limiting announced through the
// Retry-After header and gates requests until the backend accepts them again.
// The state is shared across proxy replicas via Redis when a client is given.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyBlockedUntil = "lims:rate_limit:blocked_until"
)

const (
	// DefaultRetryAfter is assumed when a 429 carries no usable Retry-After.
	DefaultRetryAfter = time.Second

	// MaxRetryAfter caps how long a single response can block requests.
	MaxRetryAfter = 5 * time.Minute
)

// RateLimitState is the current backend rate limit state.
type RateLimitState struct {
	// BlockedUntil is when requests may be sent again. Zero means never blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while requests must wait.
func (s *RateLimitState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblock returns the remaining wait.
// Returns 0 if requests are allowed.
func (s *RateLimitState) TimeUntilUnblock() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// Extend moves BlockedUntil to until when that is later.
func (s *RateLimitState) Extend(until time.Time) bool {
	s.LastUpdate = time.Now()
	if until.After(s.BlockedUntil) {
		s.BlockedUntil = until
		return true
	}
	return false
}
