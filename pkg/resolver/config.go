package resolver

import (
	"fmt"
	"time"
)

const (
	// DefaultThrottleDelay is the coalescing window between the first miss
	// and the flush it triggers.
	DefaultThrottleDelay = 20 * time.Millisecond

	// DefaultMaxIDsPerRequest is the chunk size of a single list request.
	DefaultMaxIDsPerRequest = 1000

	// DefaultChunkTimeout bounds a single chunk request.
	DefaultChunkTimeout = 15 * time.Second
)

// Config holds resolver configuration.
type Config struct {
	// ThrottleDelay is how long ids accumulate before a flush starts.
	// The timer is armed by the first miss and is not restarted by later ones.
	ThrottleDelay time.Duration

	// MaxIDsPerRequest is the maximum number of ids in one list request.
	MaxIDsPerRequest int

	// ChunkTimeout is the timeout applied to each chunk request. It covers
	// every retry the lister makes, so it should exceed the lister's retry
	// budget (client.RetryConfig.Budget); otherwise later attempts are cut
	// off and the chunk fails with context.DeadlineExceeded.
	ChunkTimeout time.Duration

	// MaxErrorRetries caps how many times an id in the Error state is
	// re-requested by Resolve. Zero means unlimited.
	MaxErrorRetries int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		ThrottleDelay:    DefaultThrottleDelay,
		MaxIDsPerRequest: DefaultMaxIDsPerRequest,
		ChunkTimeout:     DefaultChunkTimeout,
		MaxErrorRetries:  0,
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.ThrottleDelay < 0 {
		return fmt.Errorf("throttle_delay must be >= 0 (got %s)", c.ThrottleDelay)
	}
	if c.MaxIDsPerRequest < 0 {
		return fmt.Errorf("max_ids_per_request must be >= 0 (got %d)", c.MaxIDsPerRequest)
	}
	if c.MaxErrorRetries < 0 {
		return fmt.Errorf("max_error_retries must be >= 0 (got %d)", c.MaxErrorRetries)
	}
	return nil
}

// withDefaults fills zero values with defaults.
func (c Config) withDefaults() Config {
	if c.ThrottleDelay <= 0 {
		c.ThrottleDelay = DefaultThrottleDelay
	}
	if c.MaxIDsPerRequest <= 0 {
		c.MaxIDsPerRequest = DefaultMaxIDsPerRequest
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = DefaultChunkTimeout
	}
	return c
}
