// Package config loads the lims-proxy configuration from a YAML file and
// LIMS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/client"
	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/logging"
	"github.com/Sternrassler/lims-resolver/pkg/resolver"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// Example: LIMS_BACKEND_BASE_URL=https://lims.example.org
const EnvPrefix = "LIMS"

// Config represents the lims-proxy configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LIMS_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Server controls the HTTP listener
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Backend is the LIMS REST backend
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`

	// Resolver tunes batching
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`

	// Redis enables the shared entity cache
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// BackendConfig configures the LIMS REST client.
type BackendConfig struct {
	BaseURL     string            `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`
	Token       string            `mapstructure:"token" yaml:"token,omitempty"`
	UserAgent   string            `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout     time.Duration     `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
	FilterParam string            `mapstructure:"filter_param" validate:"required" yaml:"filter_param"`
	ItemsPath   string            `mapstructure:"items_path" validate:"required" yaml:"items_path"`
	Endpoints   map[string]string `mapstructure:"endpoints" yaml:"endpoints,omitempty"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig configures backend retries.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1" yaml:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" validate:"gt=0" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" validate:"gte=1" yaml:"backoff_multiplier"`
}

// ResolverConfig tunes the per-type batch schedulers.
type ResolverConfig struct {
	ThrottleDelay    time.Duration `mapstructure:"throttle_delay" validate:"gte=0" yaml:"throttle_delay"`
	MaxIDsPerRequest int           `mapstructure:"max_ids_per_request" validate:"gte=1" yaml:"max_ids_per_request"`
	ChunkTimeout     time.Duration `mapstructure:"chunk_timeout" validate:"gt=0" yaml:"chunk_timeout"`
	MaxErrorRetries  int           `mapstructure:"max_error_retries" validate:"gte=0" yaml:"max_error_retries"`
}

// RedisConfig configures the optional shared cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" validate:"gte=0" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0" yaml:"ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath skips the file; a missing file is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg as YAML to path.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the backend token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper registers defaults and environment variable support.
// Every key needs a default for AutomaticEnv to pick it up on Unmarshal.
func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	setDefaults(v, DefaultConfig())
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "20ms" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// ToClient converts the backend section to a client.Config.
func (b BackendConfig) ToClient() client.Config {
	cfg := client.DefaultConfig(b.BaseURL)
	cfg.Token = b.Token
	if b.UserAgent != "" {
		cfg.UserAgent = b.UserAgent
	}
	cfg.Timeout = b.Timeout
	cfg.FilterParam = b.FilterParam
	cfg.ItemsPath = b.ItemsPath
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       b.Retry.MaxAttempts,
		InitialBackoff:    b.Retry.InitialBackoff,
		MaxBackoff:        b.Retry.MaxBackoff,
		BackoffMultiplier: b.Retry.BackoffMultiplier,
	}

	if len(b.Endpoints) > 0 {
		cfg.Endpoints = make(map[entity.Type]string, len(b.Endpoints))
		for name, path := range b.Endpoints {
			// Unknown names are rejected by Validate.
			if typ, err := entity.ParseType(name); err == nil {
				cfg.Endpoints[typ] = path
			}
		}
	}
	return cfg
}

// ToResolver converts the resolver section to a resolver.Config.
func (r ResolverConfig) ToResolver() resolver.Config {
	return resolver.Config{
		ThrottleDelay:    r.ThrottleDelay,
		MaxIDsPerRequest: r.MaxIDsPerRequest,
		ChunkTimeout:     r.ChunkTimeout,
		MaxErrorRetries:  r.MaxErrorRetries,
	}
}

// ToLogging converts the logging section to a logging.Config.
func (l LoggingConfig) ToLogging() logging.Config {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = l.Pretty
	return cfg
}
