// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FieldEntityType is the log field carrying the entity type.
const FieldEntityType = "entity_type"

// ForType derives a logger tagged with an entity type.
func ForType(logger zerolog.Logger, typ string) zerolog.Logger {
	return logger.With().Str(FieldEntityType, typ).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Flush start/end (generation, ids, chunks)
//   - Cache layer hits and writes
//   - Backend list requests
//
// Info: Normal operation events
//   - Resolver registration
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Chunk fetch failures (ids marked Error)
//   - Retry attempts
//   - Redis errors (fallback to backend)
//
// Error: Error conditions requiring attention
//   - Backend unavailable after retries
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting package (resolver, lims-client, cache, proxy)
//   - type: Entity type (sample, container, ...)
//   - generation: Flush epoch counter
//   - ids / chunks / size: Batch dimensions
//   - status: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, network, decode)
//   - duration: Flush or request duration
