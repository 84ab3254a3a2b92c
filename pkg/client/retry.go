package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	limsRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_backend_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	limsRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lims_backend_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	limsRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_backend_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Budget returns the longest time a request can spend in retryWithBackoff
// when every attempt runs into requestTimeout, including the upper jitter
// bound. Rate limit back-offs are four times longer and not included.
func (c RetryConfig) Budget(requestTimeout time.Duration) time.Duration {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	multiplier := c.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	total := time.Duration(attempts) * requestTimeout
	backoff := c.InitialBackoff
	for i := 1; i < attempts; i++ {
		total += backoff + backoff/5
		backoff = time.Duration(float64(backoff) * multiplier)
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
	return total
}

// backoffFor scales the base backoff for an error class. Rate limiting
// waits longer than a failing server.
func backoffFor(config RetryConfig, errorClass ErrorClass) (initial, ceiling time.Duration) {
	initial, ceiling = config.InitialBackoff, config.MaxBackoff
	if errorClass == ErrorClassRateLimit {
		initial *= 4
		ceiling *= 4
	}
	return initial, ceiling
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error
// class, or the attempts are used up. Waits respect ctx and carry ±20% jitter.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() (ErrorClass, error)) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}

	var lastErr error
	var lastClass ErrorClass
	var backoff, maxBackoff time.Duration

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		errorClass, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		lastClass = errorClass

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		if attempt == 1 {
			backoff, maxBackoff = backoffFor(config, errorClass)
		}

		limsRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		limsRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	limsRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	log.Warn().
		Str("error_class", string(lastClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
