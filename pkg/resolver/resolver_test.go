package resolver

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/rs/zerolog"
)

func TestResolve_NilIDReturnsFallback(t *testing.T) {
	lister := &fakeLister{}
	r, clock, _ := newTestResolver(t, lister, DefaultConfig())

	got := Resolve(r, nil, func(it item) string { return it.Name }, "fallback")
	if got != "fallback" {
		t.Errorf("Resolve(nil) = %q, want fallback", got)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
	if clock.Total() != 0 {
		t.Errorf("nil id armed %d timers", clock.Total())
	}
}

func TestResolve_NilResolverReturnsFallback(t *testing.T) {
	var r *Resolver[int64, item]
	if got := Resolve(r, ptr(int64(1)), func(it item) int { return 1 }, 0); got != 0 {
		t.Errorf("Resolve on nil resolver = %d, want 0", got)
	}
}

func TestResolve_MissQueuesAndReturnsFallback(t *testing.T) {
	lister := &fakeLister{}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	got := Resolve(r, ptr(int64(7)), func(it item) string { return it.Name }, "loading")
	if got != "loading" {
		t.Errorf("Resolve() = %q, want loading", got)
	}
	if r.Status(7) != entity.StatusPending {
		t.Errorf("Status(7) = %v, want pending", r.Status(7))
	}
	if clock.Armed() != 1 {
		t.Fatalf("Armed() = %d, want 1", clock.Armed())
	}

	clock.Fire()
	res := waitFlush(t, flushed)
	if res.Loaded != 1 || res.Chunks != 1 {
		t.Errorf("flush result = %+v", res)
	}

	got = Resolve(r, ptr(int64(7)), func(it item) string { return it.Name }, "loading")
	if got != "item" {
		t.Errorf("Resolve() after flush = %q, want item", got)
	}
}

func TestResolve_DedupWithinWindow(t *testing.T) {
	lister := &fakeLister{}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	for i := 0; i < 10; i++ {
		Resolve(r, ptr(int64(42)), func(it item) int64 { return it.ID }, 0)
		r.Request(43, 42, 43)
	}

	if r.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", r.Pending())
	}
	if clock.Total() != 1 {
		t.Errorf("timers armed = %d, want 1 (timer must not restart)", clock.Total())
	}

	clock.Fire()
	waitFlush(t, flushed)

	calls := lister.Calls()
	if len(calls) != 1 {
		t.Fatalf("list calls = %d, want 1", len(calls))
	}
	if len(calls[0]) != 2 || calls[0][0] != 42 || calls[0][1] != 43 {
		t.Errorf("epoch ids = %v, want [42 43]", calls[0])
	}
}

func TestResolve_PendingIDNotRequeued(t *testing.T) {
	lister := &fakeLister{gate: make(chan struct{}), started: make(chan []int64, 4)}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	r.Request(1)
	clock.Fire()
	waitStarted(t, lister.started)

	// In flight: lookups must not queue the id again.
	r.Request(1)
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 while id is in flight", r.Pending())
	}

	close(lister.gate)
	waitFlush(t, flushed)

	if n := len(lister.Calls()); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
}

// Scenario A and B: 2500 ids fan out into three concurrent chunks; ids
// queued during that flush go out immediately afterwards in a fourth request.
func TestResolver_ChunkedFlushAndImmediateReflush(t *testing.T) {
	lister := &fakeLister{gate: make(chan struct{}), started: make(chan []int64, 16)}
	cfg := DefaultConfig()
	cfg.MaxIDsPerRequest = 1000
	r, clock, flushed := newTestResolver(t, lister, cfg)

	r.Request(idRange(1, 2500)...)
	if clock.Armed() != 1 {
		t.Fatalf("Armed() = %d, want 1", clock.Armed())
	}

	clock.Fire()

	// All three chunks must be in flight at once while the gate is closed.
	var sizes []int
	for i := 0; i < 3; i++ {
		sizes = append(sizes, len(waitStarted(t, lister.started)))
	}
	sort.Ints(sizes)
	if sizes[0] != 500 || sizes[1] != 1000 || sizes[2] != 1000 {
		t.Errorf("chunk sizes = %v, want [500 1000 1000]", sizes)
	}

	// Scenario B: queued during the flush.
	r.Request(idRange(2501, 2505)...)
	if r.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", r.Pending())
	}
	if clock.Armed() != 0 {
		t.Errorf("Armed() = %d, no timer may be armed while flushing", clock.Armed())
	}

	close(lister.gate)

	first := waitFlush(t, flushed)
	if first.Chunks != 3 || first.IDs != 2500 || first.Loaded != 2500 {
		t.Errorf("first flush = %+v", first)
	}

	fourth := waitStarted(t, lister.started)
	if len(fourth) != 5 {
		t.Fatalf("follow-up request has %d ids, want 5", len(fourth))
	}
	for i, id := range fourth {
		if id != int64(2501+i) {
			t.Errorf("follow-up ids = %v, want 2501..2505", fourth)
			break
		}
	}

	second := waitFlush(t, flushed)
	if second.Generation != first.Generation+1 {
		t.Errorf("generation = %d, want %d", second.Generation, first.Generation+1)
	}
	if clock.Total() != 1 {
		t.Errorf("timers armed = %d, re-flush must not wait for a timer", clock.Total())
	}
	if len(lister.Calls()) != 4 {
		t.Errorf("list calls = %d, want 4", len(lister.Calls()))
	}

	for _, id := range idRange(1, 2505) {
		if s := r.Status(id); s != entity.StatusLoaded {
			t.Fatalf("Status(%d) = %v, want loaded", id, s)
		}
	}
}

// Scenario D: a failing chunk only affects its own ids.
func TestResolver_ChunkFailureIsolated(t *testing.T) {
	netErr := errors.New("connection reset")
	lister := &fakeLister{
		fail: func(ids []int64) error {
			for _, id := range ids {
				if id == 1500 {
					return netErr
				}
			}
			return nil
		},
	}
	cfg := DefaultConfig()
	cfg.MaxIDsPerRequest = 1000
	r, clock, flushed := newTestResolver(t, lister, cfg)

	r.Request(idRange(1, 2500)...)
	clock.Fire()
	res := waitFlush(t, flushed)

	if res.FailedChunks != 1 {
		t.Errorf("FailedChunks = %d, want 1", res.FailedChunks)
	}

	for _, id := range idRange(1, 2500) {
		rec := r.Record(id)
		inFailedChunk := id >= 1001 && id <= 2000
		switch {
		case inFailedChunk && rec.Status != entity.StatusError:
			t.Fatalf("Status(%d) = %v, want error", id, rec.Status)
		case !inFailedChunk && rec.Status != entity.StatusLoaded:
			t.Fatalf("Status(%d) = %v, want loaded", id, rec.Status)
		}
	}

	rec := r.Record(1500)
	if !errors.Is(rec.Err, netErr) {
		t.Errorf("Err = %v, want wrapped %v", rec.Err, netErr)
	}
	var chunkErr *ChunkError
	if !errors.As(rec.Err, &chunkErr) {
		t.Fatalf("Err = %T, want *ChunkError", rec.Err)
	}
	if chunkErr.Chunk != 1 || chunkErr.Size != 1000 {
		t.Errorf("ChunkError = %+v", chunkErr)
	}
	if rec.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rec.Attempts)
	}
}

func TestResolver_PartialMissIsRequestedAgain(t *testing.T) {
	lister := &fakeLister{omit: map[int64]bool{2: true}}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	r.Request(1, 2, 3)
	clock.Fire()
	res := waitFlush(t, flushed)

	if res.Loaded != 2 || res.Missing != 1 {
		t.Errorf("flush result = %+v", res)
	}
	if r.Status(2) != entity.StatusAbsent {
		t.Errorf("Status(2) = %v, want absent", r.Status(2))
	}

	// A later render asks again.
	lister.mu.Lock()
	lister.omit = nil
	lister.mu.Unlock()

	if _, ok := r.Get(2); ok {
		t.Error("Get(2) should miss before the next flush")
	}
	clock.Fire()
	waitFlush(t, flushed)

	if v, ok := r.Get(2); !ok || v.ID != 2 {
		t.Errorf("Get(2) = %+v, %v", v, ok)
	}
}

func TestResolver_ErrorRetryCap(t *testing.T) {
	lister := &fakeLister{fail: func([]int64) error { return errors.New("down") }}
	cfg := DefaultConfig()
	cfg.MaxErrorRetries = 1
	r, clock, flushed := newTestResolver(t, lister, cfg)

	// First failure.
	r.Request(9)
	clock.Fire()
	waitFlush(t, flushed)
	if rec := r.Record(9); rec.Status != entity.StatusError || rec.Attempts != 1 {
		t.Fatalf("record = %+v", rec)
	}

	// One retry allowed.
	r.Request(9)
	if r.Status(9) != entity.StatusPending {
		t.Fatalf("Status(9) = %v, want pending on retry", r.Status(9))
	}
	clock.Fire()
	waitFlush(t, flushed)
	if rec := r.Record(9); rec.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", rec.Attempts)
	}

	// Cap reached: no further requests.
	r.Request(9)
	if r.Status(9) != entity.StatusError {
		t.Errorf("Status(9) = %v, want error after cap", r.Status(9))
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
	if n := len(lister.Calls()); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
}

func TestResolver_ErrorRetriedWithoutCap(t *testing.T) {
	failing := true
	lister := &fakeLister{}
	lister.fail = func([]int64) error {
		if failing {
			return errors.New("down")
		}
		return nil
	}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	r.Request(5)
	clock.Fire()
	waitFlush(t, flushed)

	lister.mu.Lock()
	failing = false
	lister.mu.Unlock()

	got := ResolveID(r, 5, func(it item) int64 { return it.ID }, -1)
	if got != -1 {
		t.Errorf("ResolveID on error = %d, want fallback", got)
	}
	clock.Fire()
	waitFlush(t, flushed)

	rec := r.Record(5)
	if rec.Status != entity.StatusLoaded || rec.Attempts != 0 {
		t.Errorf("record after retry = %+v", rec)
	}
}

func TestResolve_NonBlockingDuringFlush(t *testing.T) {
	lister := &fakeLister{gate: make(chan struct{}), started: make(chan []int64, 4)}
	r, clock, flushed := newTestResolver(t, lister, DefaultConfig())

	r.Request(1)
	clock.Fire()
	waitStarted(t, lister.started)

	start := time.Now()
	for i := 0; i < 10000; i++ {
		Resolve(r, ptr(int64(1)), func(it item) string { return it.Name }, "loading")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("10000 lookups took %v while a flush was blocked", elapsed)
	}

	close(lister.gate)
	waitFlush(t, flushed)
}

func TestResolver_TypesFlushIndependently(t *testing.T) {
	blocked := &fakeLister{gate: make(chan struct{}), started: make(chan []int64, 4)}
	free := &fakeLister{}

	a, clockA, _ := newTestResolver(t, blocked, DefaultConfig())
	b, clockB, flushedB := newTestResolver(t, free, DefaultConfig())

	a.Request(1)
	clockA.Fire()
	waitStarted(t, blocked.started)

	b.Request(1)
	clockB.Fire()
	waitFlush(t, flushedB)

	if b.Status(1) != entity.StatusLoaded {
		t.Errorf("second type blocked by first: status %v", b.Status(1))
	}
	close(blocked.gate)
}

func TestResolver_CloseStopsTimer(t *testing.T) {
	lister := &fakeLister{}
	r, clock, _ := newTestResolver(t, lister, DefaultConfig())

	r.Request(1, 2)
	r.Close()

	if clock.Armed() != 0 {
		t.Errorf("Armed() = %d after Close", clock.Armed())
	}
	if rec := r.Record(1); rec.Status != entity.StatusError || !errors.Is(rec.Err, ErrClosed) {
		t.Errorf("record after Close = %+v", rec)
	}

	r.Request(3)
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, closed resolver must not queue", r.Pending())
	}
	if rec := r.Record(3); rec.Status != entity.StatusError || !errors.Is(rec.Err, ErrClosed) {
		t.Errorf("record requested after Close = %+v, want Error(ErrClosed)", rec)
	}

	if got := ResolveID(r, int64(4), func(it item) string { return it.Name }, "fallback"); got != "fallback" {
		t.Errorf("ResolveID after Close = %q, want fallback", got)
	}
	if r.Status(4) == entity.StatusPending {
		t.Error("id resolved after Close left Pending with nothing queued")
	}

	// Error(ErrClosed) records are retryable but must not get stuck either.
	r.Request(1)
	if r.Status(1) != entity.StatusError {
		t.Errorf("Status(1) = %v after re-request on closed resolver", r.Status(1))
	}
	if len(lister.Calls()) != 0 {
		t.Errorf("closed resolver issued %d requests", len(lister.Calls()))
	}
}

func TestResolver_RealClockFlushes(t *testing.T) {
	lister := &fakeLister{}
	flushed := make(chan FlushResult, 4)
	cfg := DefaultConfig()
	cfg.ThrottleDelay = 5 * time.Millisecond

	r := New[int64, item]("item", lister, itemID, nil, cfg,
		WithFlushHook(func(res FlushResult) { flushed <- res }))
	defer r.Close()

	r.Request(1, 2, 3)
	res := waitFlush(t, flushed)
	if res.IDs != 3 {
		t.Errorf("IDs = %d, want 3", res.IDs)
	}
}

func TestNew_Panics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"nil lister", func() { New[int64, item]("item", nil, itemID, nil, DefaultConfig()) }},
		{"nil key", func() { New[int64, item]("item", &fakeLister{}, nil, nil, DefaultConfig()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("New should panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestNew_LoggerTagsEntityType(t *testing.T) {
	buf := &bytes.Buffer{}
	r := New[int64, item]("item", &fakeLister{}, itemID, nil, DefaultConfig(),
		WithClock(&manualClock{}),
		WithLogger(zerolog.New(buf).Level(zerolog.DebugLevel)),
	)

	r.Request(1)
	r.Close()

	output := buf.String()
	if !strings.Contains(output, `"entity_type":"item"`) {
		t.Errorf("log output missing entity_type field: %q", output)
	}
	if !strings.Contains(output, "Flush scheduled") {
		t.Errorf("log output missing scheduling message: %q", output)
	}
}
