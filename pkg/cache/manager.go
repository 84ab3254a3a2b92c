package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is used when NewManager is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// TTL returns the lifetime given to new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(string(key.Type)).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		return nil, err
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(string(key.Type)).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(string(key.Type)).Inc()
	return entry, nil
}

// GetMany retrieves several entries with a single MGET. The returned map
// only holds hits; missing, expired and undecodable entries are left out.
func (m *Manager) GetMany(ctx context.Context, keys []CacheKey) (map[CacheKey]*CacheEntry, error) {
	if len(keys) == 0 {
		return map[CacheKey]*CacheEntry{}, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = key.String()
	}

	values, err := m.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	hits := make(map[CacheKey]*CacheEntry, len(keys))
	for i, v := range values {
		key := keys[i]

		raw, ok := v.(string)
		if !ok {
			CacheMisses.WithLabelValues(string(key.Type)).Inc()
			continue
		}

		entry, err := decodeEntry([]byte(raw))
		if err != nil {
			CacheErrors.WithLabelValues("decode").Inc()
			CacheMisses.WithLabelValues(string(key.Type)).Inc()
			continue
		}
		if entry.IsExpired() {
			CacheMisses.WithLabelValues(string(key.Type)).Inc()
			continue
		}

		CacheHits.WithLabelValues(string(key.Type)).Inc()
		hits[key] = entry
	}

	return hits, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	return m.SetMany(ctx, map[CacheKey]*CacheEntry{key: entry})
}

// SetMany stores several entries in one pipeline. Entries that are already
// expired are skipped.
func (m *Manager) SetMany(ctx context.Context, entries map[CacheKey]*CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := m.redis.Pipeline()
	queued := 0
	var written int

	for key, entry := range entries {
		if entry == nil {
			continue
		}

		ttl := entry.TTL()
		if ttl <= 0 {
			continue
		}

		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry %s: %w", key, err)
		}

		pipe.Set(ctx, key.String(), data, ttl)
		queued++
		written += len(data)
	}

	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis pipeline set: %w", err)
	}

	CacheWrittenBytes.Add(float64(written))
	return nil
}

// Delete removes cache entries.
func (m *Manager) Delete(ctx context.Context, keys ...CacheKey) error {
	if len(keys) == 0 {
		return nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = key.String()
	}

	if err := m.redis.Del(ctx, redisKeys...).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func decodeEntry(data []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
