package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingObserver struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	entries   atomic.Int64
}

func (o *countingObserver) RecordCacheHit()       { o.hits.Add(1) }
func (o *countingObserver) RecordCacheMiss()      { o.misses.Add(1) }
func (o *countingObserver) RecordCacheEviction()  { o.evictions.Add(1) }
func (o *countingObserver) SetCacheEntries(n int) { o.entries.Store(int64(n)) }

func constant(v float64, calls *atomic.Int64) ComputeFunc {
	return func(context.Context, string, string) (float64, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestNew(t *testing.T) {
	if _, err := New(10, nil, nil); err == nil {
		t.Error("New() with nil compute should fail")
	}

	var calls atomic.Int64
	c, err := New(0, constant(1, &calls), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	var calls atomic.Int64
	obs := &countingObserver{}
	c, err := New(4, constant(0.75, &calls), obs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background(), "TestLocation", "26.12.2020")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != 0.75 {
			t.Errorf("Get() = %v, want 0.75", got)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 2 hits and 1 miss", stats)
	}
	if stats.Entries != 1 {
		t.Errorf("Stats().Entries = %d, want 1", stats.Entries)
	}
	if r := stats.HitRatio(); r < 0.66 || r > 0.67 {
		t.Errorf("HitRatio() = %v, want 2/3", r)
	}
	if obs.hits.Load() != 2 || obs.misses.Load() != 1 || obs.entries.Load() != 1 {
		t.Errorf("observer saw hits=%d misses=%d entries=%d", obs.hits.Load(), obs.misses.Load(), obs.entries.Load())
	}
}

func TestCache_KeysAreIndependent(t *testing.T) {
	c, err := New(4, func(_ context.Context, location, week string) (float64, error) {
		if location == "a" {
			return 0.1, nil
		}
		if week == "01.01.2021" {
			return 0.2, nil
		}
		return 0.3, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		location, week string
		want           float64
	}{
		{"a", "01.01.2021", 0.1},
		{"b", "01.01.2021", 0.2},
		{"b", "08.01.2021", 0.3},
		{"a", "08.01.2021", 0.1},
	}
	for _, tt := range tests {
		got, err := c.Get(context.Background(), tt.location, tt.week)
		if err != nil {
			t.Fatalf("Get(%s, %s) error = %v", tt.location, tt.week, err)
		}
		if got != tt.want {
			t.Errorf("Get(%s, %s) = %v, want %v", tt.location, tt.week, got, tt.want)
		}
	}
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}

func TestCache_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	c, err := New(4, func(context.Context, string, string) (float64, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return 0.5, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const callers = 32
	results := make([]float64, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "loc", "01.01.2021")
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d: error = %v", i, errs[i])
		}
		if results[i] != 0.5 {
			t.Errorf("caller %d: got %v, want 0.5", i, results[i])
		}
	}
}

func TestCache_FailuresAreNotCached(t *testing.T) {
	errBoom := errors.New("boom")
	var calls atomic.Int64
	var fail atomic.Bool
	fail.Store(true)

	c, err := New(4, func(context.Context, string, string) (float64, error) {
		calls.Add(1)
		if fail.Load() {
			return 0, errBoom
		}
		return 0.9, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Get(context.Background(), "loc", "01.01.2021"); !errors.Is(err, errBoom) {
		t.Fatalf("Get() error = %v, want %v", err, errBoom)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after failure, want 0", c.Len())
	}

	fail.Store(false)
	got, err := c.Get(context.Background(), "loc", "01.01.2021")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 0.9 {
		t.Errorf("Get() = %v, want 0.9", got)
	}
	if calls.Load() != 2 {
		t.Errorf("compute called %d times, want 2", calls.Load())
	}
}

func TestCache_ConcurrentFailureShared(t *testing.T) {
	errBoom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	c, err := New(4, func(context.Context, string, string) (float64, error) {
		once.Do(func() { close(started) })
		<-release
		return 0, errBoom
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "loc", "01.01.2021")
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, errBoom) {
			t.Errorf("caller %d: error = %v, want %v", i, err, errBoom)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_WaiterContextCanceled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	c, err := New(4, func(context.Context, string, string) (float64, error) {
		close(started)
		<-release
		return 0.4, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	leader := make(chan float64, 1)
	go func() {
		v, _ := c.Get(context.Background(), "loc", "01.01.2021")
		leader <- v
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "loc", "01.01.2021"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}

	close(release)
	if v := <-leader; v != 0.4 {
		t.Errorf("leader got %v, want 0.4", v)
	}
	if v, ok := c.Peek("loc", "01.01.2021"); !ok || v != 0.4 {
		t.Errorf("Peek() = %v, %v, want 0.4, true", v, ok)
	}
}

func TestCache_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	obs := &countingObserver{}

	c, err := New(4, func(ctx context.Context, _, _ string) (float64, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0.9, nil
	}, obs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := c.Get(leaderCtx, "loc", "01.01.2021")
		leader <- err
	}()
	<-started

	type result struct {
		v   float64
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background(), "loc", "01.01.2021")
		waiter <- result{v, err}
	}()

	// Let the waiter join the flight before the leader goes away.
	deadline := time.Now().Add(time.Second)
	for obs.misses.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leader; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}

	close(release)
	res := <-waiter
	if res.err != nil {
		t.Fatalf("waiter error = %v, want nil", res.err)
	}
	if res.v != 0.9 {
		t.Errorf("waiter got %v, want 0.9", res.v)
	}
	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
	if v, ok := c.Peek("loc", "01.01.2021"); !ok || v != 0.9 {
		t.Errorf("Peek() = %v, %v, want 0.9, true", v, ok)
	}
}

func TestCache_PanicReturnedAsError(t *testing.T) {
	var calls atomic.Int64
	c, err := New(4, func(context.Context, string, string) (float64, error) {
		if calls.Add(1) == 1 {
			panic("repository exploded")
		}
		return 0.5, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Get(context.Background(), "loc", "01.01.2021"); err == nil {
		t.Fatal("Get() after a panicking compute should fail")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after a panic", c.Len())
	}

	v, err := c.Get(context.Background(), "loc", "01.01.2021")
	if err != nil || v != 0.5 {
		t.Errorf("retry Get() = %v, %v, want 0.5, nil", v, err)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	var calls atomic.Int64
	obs := &countingObserver{}
	c, err := New(2, constant(1, &calls), obs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for _, loc := range []string{"a", "b"} {
		if _, err := c.Get(ctx, loc, "01.01.2021"); err != nil {
			t.Fatalf("Get(%s) error = %v", loc, err)
		}
	}
	// Touch a so that b becomes least recently used.
	if _, err := c.Get(ctx, "a", "01.01.2021"); err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	if _, err := c.Get(ctx, "c", "01.01.2021"); err != nil {
		t.Fatalf("Get(c) error = %v", err)
	}

	if _, ok := c.Peek("b", "01.01.2021"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Peek("a", "01.01.2021"); !ok {
		t.Error("a should still be cached")
	}
	if c.Stats().Evictions != 1 || obs.evictions.Load() != 1 {
		t.Errorf("evictions = %d (observer %d), want 1", c.Stats().Evictions, obs.evictions.Load())
	}

	// b is recomputed after eviction.
	before := calls.Load()
	if _, err := c.Get(ctx, "b", "01.01.2021"); err != nil {
		t.Fatalf("Get(b) error = %v", err)
	}
	if calls.Load() != before+1 {
		t.Errorf("compute calls = %d, want %d", calls.Load(), before+1)
	}
}

func TestCache_Resize(t *testing.T) {
	var calls atomic.Int64
	c, err := New(4, constant(1, &calls), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, loc := range []string{"a", "b", "c", "d"} {
		if _, err := c.Get(context.Background(), loc, "01.01.2021"); err != nil {
			t.Fatalf("Get(%s) error = %v", loc, err)
		}
	}

	if evicted := c.Resize(2); evicted != 2 {
		t.Errorf("Resize(2) evicted %d, want 2", evicted)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Peek("d", "01.01.2021"); !ok {
		t.Error("most recent entry should survive Resize")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
}
