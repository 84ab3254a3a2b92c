package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/logging"
	"github.com/Sternrassler/lims-resolver/pkg/resolver"
	"github.com/rs/zerolog"
)

// Store is the part of Manager used by CachingLister.
type Store interface {
	GetMany(ctx context.Context, keys []CacheKey) (map[CacheKey]*CacheEntry, error)
	SetMany(ctx context.Context, entries map[CacheKey]*CacheEntry) error
	TTL() time.Duration
}

// CachingLister serves list requests from the shared cache first and asks the
// upstream lister only for the remaining ids.
type CachingLister[V any] struct {
	typ      entity.Type
	upstream resolver.Lister[int64, V]
	key      func(V) int64
	store    Store
	logger   zerolog.Logger
}

// NewCachingLister wraps upstream with store.
func NewCachingLister[V any](typ entity.Type, upstream resolver.Lister[int64, V], key func(V) int64, store Store, logger zerolog.Logger) *CachingLister[V] {
	return &CachingLister[V]{
		typ:      typ,
		upstream: upstream,
		key:      key,
		store:    store,
		logger:   logging.ForType(logger, string(typ)),
	}
}

// ListByIDs implements resolver.Lister.
func (l *CachingLister[V]) ListByIDs(ctx context.Context, ids []int64) ([]V, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	hits, err := l.store.GetMany(ctx, KeysFor(l.typ, ids))
	if err != nil {
		l.logger.Warn().Err(err).Int("ids", len(ids)).Msg("Cache read failed, using backend")
		hits = nil
	}

	items := make([]V, 0, len(ids))
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		entry, ok := hits[CacheKey{Type: l.typ, ID: id}]
		if !ok {
			missing = append(missing, id)
			continue
		}

		var v V
		if err := json.Unmarshal(entry.Data, &v); err != nil {
			CacheErrors.WithLabelValues("decode").Inc()
			missing = append(missing, id)
			continue
		}
		items = append(items, v)
	}

	if len(missing) == 0 {
		return items, nil
	}

	fetched, err := l.upstream.ListByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	if err := l.store.SetMany(ctx, l.entries(fetched)); err != nil {
		l.logger.Warn().Err(err).Int("items", len(fetched)).Msg("Cache write failed")
	}

	l.logger.Debug().
		Int("hits", len(items)).
		Int("fetched", len(fetched)).
		Int("requested", len(missing)).
		Msg("Listed through cache")

	return append(items, fetched...), nil
}

func (l *CachingLister[V]) entries(items []V) map[CacheKey]*CacheEntry {
	ttl := l.store.TTL()
	entries := make(map[CacheKey]*CacheEntry, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			continue
		}
		entries[CacheKey{Type: l.typ, ID: l.key(item)}] = NewEntry(data, ttl)
	}
	return entries
}
