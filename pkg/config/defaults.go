package config

import (
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/cache"
	"github.com/Sternrassler/lims-resolver/pkg/client"
	"github.com/Sternrassler/lims-resolver/pkg/resolver"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the backend used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	retry := client.DefaultRetryConfig()
	rc := resolver.DefaultConfig()
	cc := client.DefaultConfig(DefaultBaseURL)

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:     DefaultBaseURL,
			UserAgent:   cc.UserAgent,
			Timeout:     cc.Timeout,
			FilterParam: client.DefaultFilterParam,
			ItemsPath:   client.DefaultItemsPath,
			Retry: RetryConfig{
				MaxAttempts:       retry.MaxAttempts,
				InitialBackoff:    retry.InitialBackoff,
				MaxBackoff:        retry.MaxBackoff,
				BackoffMultiplier: retry.BackoffMultiplier,
			},
		},
		Resolver: ResolverConfig{
			ThrottleDelay:    rc.ThrottleDelay,
			MaxIDsPerRequest: rc.MaxIDsPerRequest,
			ChunkTimeout:     rc.ChunkTimeout,
			MaxErrorRetries:  rc.MaxErrorRetries,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     cache.DefaultTTL,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// setDefaults registers every key of cfg with viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("backend.base_url", cfg.Backend.BaseURL)
	v.SetDefault("backend.token", cfg.Backend.Token)
	v.SetDefault("backend.user_agent", cfg.Backend.UserAgent)
	v.SetDefault("backend.timeout", cfg.Backend.Timeout)
	v.SetDefault("backend.filter_param", cfg.Backend.FilterParam)
	v.SetDefault("backend.items_path", cfg.Backend.ItemsPath)
	v.SetDefault("backend.retry.max_attempts", cfg.Backend.Retry.MaxAttempts)
	v.SetDefault("backend.retry.initial_backoff", cfg.Backend.Retry.InitialBackoff)
	v.SetDefault("backend.retry.max_backoff", cfg.Backend.Retry.MaxBackoff)
	v.SetDefault("backend.retry.backoff_multiplier", cfg.Backend.Retry.BackoffMultiplier)

	v.SetDefault("resolver.throttle_delay", cfg.Resolver.ThrottleDelay)
	v.SetDefault("resolver.max_ids_per_request", cfg.Resolver.MaxIDsPerRequest)
	v.SetDefault("resolver.chunk_timeout", cfg.Resolver.ChunkTimeout)
	v.SetDefault("resolver.max_error_retries", cfg.Resolver.MaxErrorRetries)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.ttl", cfg.Redis.TTL)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
}
