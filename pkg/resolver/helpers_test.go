package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// item is the value type used by resolver tests.
type item struct {
	ID   int64
	Name string
}

func itemID(it item) int64 { return it.ID }

// fakeLister records every list call. Calls block on gate when it is set
// and report their ids on started when it is set.
type fakeLister struct {
	mu      sync.Mutex
	calls   [][]int64
	gate    chan struct{}
	started chan []int64
	fail    func(ids []int64) error
	omit    map[int64]bool
}

func (f *fakeLister) ListByIDs(ctx context.Context, ids []int64) ([]item, error) {
	cp := append([]int64(nil), ids...)

	f.mu.Lock()
	f.calls = append(f.calls, cp)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- cp
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(cp); err != nil {
			return nil, err
		}
	}

	items := make([]item, 0, len(cp))
	// Reverse order: the backend does not preserve input order.
	for i := len(cp) - 1; i >= 0; i-- {
		if f.omit[cp[i]] {
			continue
		}
		items = append(items, item{ID: cp[i], Name: "item"})
	}
	return items, nil
}

func (f *fakeLister) Calls() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]int64, len(f.calls))
	copy(out, f.calls)
	return out
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	done    bool
	stopped bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Armed returns the number of timers that have neither fired nor been stopped.
func (c *manualClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

// Total returns the number of timers ever armed.
func (c *manualClock) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Fire runs every armed timer on its own goroutine, like time.AfterFunc.
func (c *manualClock) Fire() int {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		go t.f()
	}
	return len(due)
}

// newTestResolver builds a resolver on a manual clock and returns a channel
// receiving every flush result.
func newTestResolver(t *testing.T, lister Lister[int64, item], cfg Config) (*Resolver[int64, item], *manualClock, chan FlushResult) {
	t.Helper()

	clock := &manualClock{}
	flushed := make(chan FlushResult, 32)
	r := New[int64, item]("item", lister, itemID, nil, cfg,
		WithClock(clock),
		WithLogger(zerolog.Nop()),
		WithFlushHook(func(res FlushResult) { flushed <- res }),
	)
	t.Cleanup(r.Close)
	return r, clock, flushed
}

func waitFlush(t *testing.T, flushed <-chan FlushResult) FlushResult {
	t.Helper()
	select {
	case res := <-flushed:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return FlushResult{}
	}
}

func waitStarted(t *testing.T, started <-chan []int64) []int64 {
	t.Helper()
	select {
	case ids := <-started:
		return ids
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk request")
		return nil
	}
}

func idRange(from, to int64) []int64 {
	ids := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func ptr[T any](v T) *T { return &v }
