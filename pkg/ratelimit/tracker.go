package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitBlockedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lims_rate_limit_blocked_seconds",
		Help: "Seconds until the backend accepts requests again",
	})

	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lims_rate_limit_hits_total",
		Help: "Total number of backend responses announcing a rate limit",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lims_rate_limit_waits_total",
		Help: "Total number of requests delayed by an active rate limit",
	})
)

// Tracker records Retry-After announcements and delays requests until they
// pass. A nil Redis client keeps the state in process.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	local RateLimitState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState returns the current state, merging the shared Redis state with
// the local one.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	t.mu.Lock()
	state := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return &state, nil
	}

	ms, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &state, nil
		}
		return &state, fmt.Errorf("get blocked until: %w", err)
	}

	state.Extend(time.UnixMilli(ms))
	return &state, nil
}

// Block prevents requests until until. Earlier deadlines never shorten an
// active block.
func (t *Tracker) Block(ctx context.Context, until time.Time) error {
	t.mu.Lock()
	extended := t.local.Extend(until)
	t.mu.Unlock()

	rateLimitBlockedSeconds.Set(time.Until(until).Seconds())

	if extended {
		t.logger.Warn().
			Time("blocked_until", until).
			Dur("wait", time.Until(until)).
			Msg("Backend rate limit - requests paused")
	}

	if t.redis == nil {
		return nil
	}

	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	// Only move the shared deadline forward.
	ok, err := t.redis.SetNX(ctx, RedisKeyBlockedUntil, until.UnixMilli(), ttl).Result()
	if err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	if ok {
		return nil
	}

	current, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get blocked until: %w", err)
	}
	if until.UnixMilli() > current {
		if err := t.redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), ttl).Err(); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}
	return nil
}

// UpdateFromResponse blocks requests when resp announces a rate limit: a 429,
// or a 503 carrying Retry-After.
func (t *Tracker) UpdateFromResponse(ctx context.Context, resp *http.Response) error {
	if resp == nil {
		return nil
	}

	header := resp.Header.Get("Retry-After")
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
	case resp.StatusCode == http.StatusServiceUnavailable && header != "":
	default:
		return nil
	}

	rateLimitHitsTotal.Inc()

	wait, ok := ParseRetryAfter(header, time.Now())
	if !ok {
		wait = DefaultRetryAfter
	}
	return t.Block(ctx, time.Now().Add(wait))
}

// Wait returns once requests are allowed or ctx is done.
// Redis errors are logged and do not block.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read rate limit state, using local state")
	}
	if !state.IsBlocked() {
		return nil
	}

	wait := state.TimeUntilUnblock()
	rateLimitWaitsTotal.Inc()
	t.logger.Debug().Dur("wait", wait).Msg("Waiting for backend rate limit")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParseRetryAfter parses a Retry-After value given in seconds or as an HTTP
// date. The result is capped at MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	} else {
		at, err := http.ParseTime(value)
		if err != nil {
			return 0, false
		}
		d = at.Sub(now)
		if d < 0 {
			d = 0
		}
	}

	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d, true
}
