// Package cache memoizes QoS metrics per (location, week).
//
// Cache sits in front of an expensive ComputeFunc. Successful results are kept
// in a bounded LRU; errors are returned to every caller that was waiting on
// them and then forgotten, so the next request retries. Concurrent misses on
// the same key share a single in-flight computation.
//
// Cache is safe for concurrent use by multiple goroutines.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the LRU capacity used when New is given a non-positive size.
const DefaultSize = 128

// ComputeFunc produces the metric for a key on a cache miss.
type ComputeFunc func(ctx context.Context, location, week string) (float64, error)

// Key identifies a cached metric.
type Key struct {
	Location string
	Week     string
}

func (k Key) String() string {
	return k.Location + "|" + k.Week
}

// Observer receives cache events, typically to export them as metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheEviction()
	SetCacheEntries(n int)
}

// Cache is a single-flight, size-bounded LRU over a ComputeFunc.
type Cache struct {
	entries  *lru.Cache[Key, float64]
	group    singleflight.Group
	compute  ComputeFunc
	observer Observer

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache holding at most size entries. observer may be nil.
func New(size int, compute ComputeFunc, observer Observer) (*Cache, error) {
	if compute == nil {
		return nil, fmt.Errorf("compute function cannot be nil")
	}
	if size <= 0 {
		size = DefaultSize
	}

	c := &Cache{
		compute:  compute,
		observer: observer,
	}

	entries, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.entries = entries

	return c, nil
}

// Get returns the cached metric for (location, week), computing it on a miss.
//
// Among concurrent callers missing the same key, exactly one computation
// runs; every caller waits for its outcome, or returns early with ctx.Err()
// if its own context is done first. The computation keeps the first caller's
// context values but not its cancellation, so one caller leaving does not
// fail the others. Errors, including recovered panics, are never stored.
func (c *Cache) Get(ctx context.Context, location, week string) (float64, error) {
	key := Key{Location: location, Week: week}

	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		if c.observer != nil {
			c.observer.RecordCacheHit()
		}
		return v, nil
	}

	c.misses.Add(1)
	if c.observer != nil {
		c.observer.RecordCacheMiss()
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (_ any, err error) {
		// DoChan re-panics on its own goroutine, out of reach of any
		// caller's recovery.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("compute %s: panic: %v", key, r)
			}
		}()

		// A flight that finished between our lookup and DoChan has
		// already populated the entry.
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}

		v, err := c.compute(flightCtx, location, week)
		if err != nil {
			return 0.0, err
		}

		c.entries.Add(key, v)
		if c.observer != nil {
			c.observer.SetCacheEntries(c.entries.Len())
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Peek returns the cached metric without computing it or touching recency.
func (c *Cache) Peek(location, week string) (float64, bool) {
	return c.entries.Peek(Key{Location: location, Week: week})
}

// Len returns the number of cached metrics.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Resize changes the capacity, evicting the least recently used entries if
// the cache shrinks. It returns the number of evicted entries.
func (c *Cache) Resize(size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	evicted := c.entries.Resize(size)
	if c.observer != nil {
		c.observer.SetCacheEntries(c.entries.Len())
	}
	return evicted
}

// Purge drops every cached metric.
func (c *Cache) Purge() {
	c.entries.Purge()
	if c.observer != nil {
		c.observer.SetCacheEntries(0)
	}
}

func (c *Cache) onEvict(_ Key, _ float64) {
	c.evictions.Add(1)
	if c.observer != nil {
		c.observer.RecordCacheEviction()
	}
}
