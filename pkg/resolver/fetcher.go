package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/rs/zerolog"
)

// Lister fetches entities by id. Implementations may omit ids that no longer
// exist and may return items in any order.
type Lister[K comparable, V any] interface {
	ListByIDs(ctx context.Context, ids []K) ([]V, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc[K comparable, V any] func(ctx context.Context, ids []K) ([]V, error)

// ListByIDs calls f(ctx, ids).
func (f ListerFunc[K, V]) ListByIDs(ctx context.Context, ids []K) ([]V, error) {
	return f(ctx, ids)
}

// Cache is the record store a resolver reads from and writes into.
type Cache[K comparable, V any] interface {
	Read(id K) entity.Record[V]
	Write(id K, rec entity.Record[V])
	Update(id K, fn func(entity.Record[V]) entity.Record[V]) entity.Record[V]
}

// Epoch is the immutable set of ids drained from the pending set for one flush.
type Epoch[K comparable] struct {
	Generation uint64
	IDs        []K
}

// FlushResult summarizes one flush epoch.
type FlushResult struct {
	Type         entity.Type
	Generation   uint64
	IDs          int
	Chunks       int
	FailedChunks int
	Loaded       int
	Missing      int
	Duration     time.Duration
}

// chunkResult is the outcome of a single chunk request.
type chunkResult struct {
	loaded  int
	missing int
	err     error
}

// ChunkedFetcher splits an epoch into bounded chunks and fetches them
// concurrently, merging every response into the cache.
type ChunkedFetcher[K comparable, V any] struct {
	typ    entity.Type
	lister Lister[K, V]
	key    func(V) K
	cache  Cache[K, V]
	config Config
	logger zerolog.Logger
}

// NewChunkedFetcher creates a fetcher for one entity type.
func NewChunkedFetcher[K comparable, V any](typ entity.Type, lister Lister[K, V], key func(V) K, cache Cache[K, V], config Config, logger zerolog.Logger) *ChunkedFetcher[K, V] {
	return &ChunkedFetcher[K, V]{
		typ:    typ,
		lister: lister,
		key:    key,
		cache:  cache,
		config: config.withDefaults(),
		logger: logger,
	}
}

// Partition splits ids into consecutive chunks of at most size ids,
// preserving order. The chunks share the backing array of ids.
func Partition[K any](ids []K, size int) [][]K {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultMaxIDsPerRequest
	}

	chunks := make([][]K, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}

// Flush fetches every id of the epoch and returns once all chunk requests
// have settled. Failures are recorded per chunk in the cache and never
// returned.
func (f *ChunkedFetcher[K, V]) Flush(ctx context.Context, epoch Epoch[K]) FlushResult {
	start := time.Now()
	chunks := Partition(epoch.IDs, f.config.MaxIDsPerRequest)

	f.logger.Debug().
		Uint64("generation", epoch.Generation).
		Int("ids", len(epoch.IDs)).
		Int("chunks", len(chunks)).
		Msg("Starting flush")

	results := make([]chunkResult, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []K) {
			defer wg.Done()
			results[i] = f.fetchChunk(ctx, epoch.Generation, i, chunk)
		}(i, chunk)
	}
	wg.Wait()

	result := FlushResult{
		Type:       f.typ,
		Generation: epoch.Generation,
		IDs:        len(epoch.IDs),
		Chunks:     len(chunks),
		Duration:   time.Since(start),
	}
	for _, r := range results {
		if r.err != nil {
			result.FailedChunks++
			continue
		}
		result.Loaded += r.loaded
		result.Missing += r.missing
	}

	flushesTotal.WithLabelValues(string(f.typ)).Inc()
	flushSize.WithLabelValues(string(f.typ)).Observe(float64(result.IDs))
	flushDuration.WithLabelValues(string(f.typ)).Observe(result.Duration.Seconds())

	f.logger.Debug().
		Uint64("generation", epoch.Generation).
		Int("loaded", result.Loaded).
		Int("missing", result.Missing).
		Int("failed_chunks", result.FailedChunks).
		Dur("duration", result.Duration).
		Msg("Flush complete")

	return result
}

// fetchChunk issues the list request for one chunk and merges its outcome.
func (f *ChunkedFetcher[K, V]) fetchChunk(ctx context.Context, generation uint64, index int, chunk []K) chunkResult {
	chunkCtx, cancel := context.WithTimeout(ctx, f.config.ChunkTimeout)
	items, err := f.lister.ListByIDs(chunkCtx, chunk)
	cancel()

	if err != nil {
		chunkRequests.WithLabelValues(string(f.typ), "error").Inc()
		chunkErr := &ChunkError{
			Type:       f.typ,
			Generation: generation,
			Chunk:      index,
			Size:       len(chunk),
			Err:        err,
		}
		f.fail(chunk, chunkErr)

		f.logger.Warn().
			Err(err).
			Uint64("generation", generation).
			Int("chunk", index).
			Int("size", len(chunk)).
			Msg("Chunk fetch failed")

		return chunkResult{err: chunkErr}
	}

	chunkRequests.WithLabelValues(string(f.typ), "ok").Inc()
	loaded, missing := f.apply(chunk, items)
	if missing > 0 {
		partialMisses.WithLabelValues(string(f.typ)).Add(float64(missing))
	}
	return chunkResult{loaded: loaded, missing: missing}
}

// apply merges a successful response. Returned items become Loaded; ids the
// backend omitted go back from Pending to Absent so a later lookup asks again.
// Applying the same response twice leaves the cache unchanged.
func (f *ChunkedFetcher[K, V]) apply(chunk []K, items []V) (loaded, missing int) {
	seen := make(map[K]struct{}, len(items))
	for _, item := range items {
		id := f.key(item)
		seen[id] = struct{}{}
		f.cache.Write(id, entity.Loaded(item))
		loaded++
	}

	for _, id := range chunk {
		if _, ok := seen[id]; ok {
			continue
		}
		missing++
		f.cache.Update(id, func(rec entity.Record[V]) entity.Record[V] {
			if rec.Status == entity.StatusPending {
				rec.Status = entity.StatusAbsent
			}
			return rec
		})
	}
	return loaded, missing
}

// fail marks every id of a chunk as Error.
func (f *ChunkedFetcher[K, V]) fail(chunk []K, err error) {
	for _, id := range chunk {
		f.cache.Update(id, func(rec entity.Record[V]) entity.Record[V] {
			var zero V
			return entity.Record[V]{
				Status:   entity.StatusError,
				Value:    zero,
				Err:      err,
				Attempts: rec.Attempts + 1,
			}
		})
	}
}
