package resolver

import (
	"context"
	"sync"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/logging"
	"github.com/Sternrassler/lims-resolver/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// state is the scheduler state of a Resolver.
type state int

const (
	stateIdle state = iota
	stateScheduled
	stateFlushing
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateScheduled:
		return "scheduled"
	case stateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Option configures a Resolver.
type Option func(*options)

type options struct {
	clock     Clock
	logger    *zerolog.Logger
	flushHook func(FlushResult)
}

// WithClock replaces the clock used for the throttle timer.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithFlushHook registers fn to be called after every flush epoch settles.
func WithFlushHook(fn func(FlushResult)) Option {
	return func(o *options) { o.flushHook = fn }
}

// Resolver is the per-entity-type coalescer. It owns the pending set and the
// in-flight state for its type; at most one flush runs at a time.
type Resolver[K comparable, V any] struct {
	typ     entity.Type
	cache   Cache[K, V]
	fetcher *ChunkedFetcher[K, V]
	config  Config
	clock   Clock
	logger  zerolog.Logger
	hook    func(FlushResult)

	ctx    context.Context
	cancel context.CancelFunc

	// Per-status lookup counters, resolved once to keep Resolve cheap.
	lookupCounters [4]prometheus.Counter
	pendingGauge   prometheus.Gauge

	mu         sync.Mutex
	pending    *PendingSet[K]
	state      state
	timer      Timer
	generation uint64
	closed     bool
	inflight   sync.WaitGroup
}

// New creates a resolver for one entity type. key extracts the id from a
// fetched value. A nil cache gets an in-memory store.
func New[K comparable, V any](typ entity.Type, lister Lister[K, V], key func(V) K, cache Cache[K, V], config Config, opts ...Option) *Resolver[K, V] {
	if lister == nil {
		panic("lister cannot be nil")
	}
	if key == nil {
		panic("key func cannot be nil")
	}

	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	base := logging.NewLogger("resolver")
	if o.logger != nil {
		base = *o.logger
	}
	logger := logging.ForType(base, string(typ))

	if cache == nil {
		cache = store.NewMemory[K, V]()
	}

	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Resolver[K, V]{
		typ:          typ,
		cache:        cache,
		fetcher:      NewChunkedFetcher(typ, lister, key, cache, config, logger),
		config:       config,
		clock:        o.clock,
		logger:       logger,
		hook:         o.flushHook,
		ctx:          ctx,
		cancel:       cancel,
		pendingGauge: pendingIDs.WithLabelValues(string(typ)),
		pending:      NewPendingSet[K](),
	}
	for _, s := range []entity.Status{entity.StatusAbsent, entity.StatusPending, entity.StatusLoaded, entity.StatusError} {
		r.lookupCounters[s] = lookups.WithLabelValues(string(typ), s.String())
	}
	return r
}

// Type returns the entity type served by this resolver.
func (r *Resolver[K, V]) Type() entity.Type {
	return r.typ
}

// Record returns the cached record for id without side effects.
func (r *Resolver[K, V]) Record(id K) entity.Record[V] {
	return r.cache.Read(id)
}

// Status returns the cached status for id without side effects.
func (r *Resolver[K, V]) Status(id K) entity.Status {
	return r.cache.Read(id).Status
}

// Get returns the loaded value for id. On a miss it queues the id and
// returns false.
func (r *Resolver[K, V]) Get(id K) (V, bool) {
	rec := r.lookup(id)
	if rec.Status == entity.StatusLoaded {
		return rec.Value, true
	}
	var zero V
	return zero, false
}

// Request queues every id that is not loaded or already in flight. It is
// used to prefetch references before rendering.
func (r *Resolver[K, V]) Request(ids ...K) {
	for _, id := range ids {
		r.lookup(id)
	}
}

// Pending returns the number of ids waiting for the next flush.
func (r *Resolver[K, V]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Len()
}

// Generation returns the number of flush epochs started so far.
func (r *Resolver[K, V]) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// lookup reads id and, for Absent ids and retryable Error ids, moves the
// record to Pending and queues it. It never blocks on the network.
func (r *Resolver[K, V]) lookup(id K) entity.Record[V] {
	rec := r.cache.Read(id)
	if int(rec.Status) < len(r.lookupCounters) {
		r.lookupCounters[rec.Status].Inc()
	}

	switch rec.Status {
	case entity.StatusAbsent:
	case entity.StatusError:
		if !r.retryable(rec) {
			return rec
		}
	default:
		return rec
	}

	queued := false
	r.cache.Update(id, func(cur entity.Record[V]) entity.Record[V] {
		if cur.Status == entity.StatusAbsent || (cur.Status == entity.StatusError && r.retryable(cur)) {
			cur.Status = entity.StatusPending
			queued = true
		}
		return cur
	})
	if queued && !r.enqueue(id) {
		r.cache.Update(id, func(cur entity.Record[V]) entity.Record[V] {
			if cur.Status == entity.StatusPending {
				cur.Status = entity.StatusError
				cur.Err = ErrClosed
			}
			return cur
		})
	}
	return rec
}

// retryable reports whether an Error record may be requested again.
func (r *Resolver[K, V]) retryable(rec entity.Record[V]) bool {
	return r.config.MaxErrorRetries == 0 || rec.Attempts <= r.config.MaxErrorRetries
}

// enqueue adds id to the pending set and arms the throttle timer if the
// resolver is idle. A scheduled timer is never restarted. It returns false
// once the resolver is closed.
func (r *Resolver[K, V]) enqueue(id K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if !r.pending.Add(id) {
		return true
	}
	r.pendingGauge.Inc()

	if r.state != stateIdle {
		return true
	}
	r.state = stateScheduled
	r.timer = r.clock.AfterFunc(r.config.ThrottleDelay, r.fire)

	r.logger.Debug().
		Dur("delay", r.config.ThrottleDelay).
		Msg("Flush scheduled")
	return true
}

// fire runs when the throttle timer expires.
func (r *Resolver[K, V]) fire() {
	r.mu.Lock()
	if r.closed || r.state != stateScheduled {
		r.mu.Unlock()
		return
	}
	epoch := r.captureLocked()
	r.inflight.Add(1)
	r.mu.Unlock()

	defer r.inflight.Done()
	r.run(epoch)
}

// run flushes epochs back to back until the pending set stays empty.
func (r *Resolver[K, V]) run(epoch Epoch[K]) {
	for {
		result := r.fetcher.Flush(r.ctx, epoch)
		if r.hook != nil {
			r.hook(result)
		}

		r.mu.Lock()
		if r.closed || r.pending.Len() == 0 {
			r.state = stateIdle
			r.mu.Unlock()
			return
		}
		epoch = r.captureLocked()
		r.mu.Unlock()

		r.logger.Debug().
			Uint64("generation", epoch.Generation).
			Int("ids", len(epoch.IDs)).
			Msg("Ids arrived during flush, flushing again")
	}
}

// captureLocked drains the pending set into a new epoch. r.mu must be held.
func (r *Resolver[K, V]) captureLocked() Epoch[K] {
	r.state = stateFlushing
	r.timer = nil
	r.generation++

	ids := r.pending.Drain()
	r.pendingGauge.Sub(float64(len(ids)))

	return Epoch[K]{Generation: r.generation, IDs: ids}
}

// Close stops the throttle timer, cancels in-flight requests and waits for
// the running flush to settle. Ids still queued are dropped.
func (r *Resolver[K, V]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	dropped := r.pending.Drain()
	r.pendingGauge.Sub(float64(len(dropped)))
	if r.state == stateScheduled {
		r.state = stateIdle
	}
	r.mu.Unlock()

	r.cancel()
	r.inflight.Wait()

	for _, id := range dropped {
		r.cache.Update(id, func(rec entity.Record[V]) entity.Record[V] {
			if rec.Status == entity.StatusPending {
				rec.Status = entity.StatusError
				rec.Err = ErrClosed
			}
			return rec
		})
	}

	if len(dropped) > 0 {
		r.logger.Info().Int("dropped", len(dropped)).Msg("Resolver closed with queued ids")
	}
}
