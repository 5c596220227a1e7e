package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory metric store.
// It is safe for concurrent use by multiple goroutines.
//
// Records live in a map keyed by location and week. If a TTL is configured, a
// background goroutine removes records whose ComputedAt is older than the TTL.
// Records do not survive restarts; use RedisStore or PostgresStore when they
// must.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[memoryKey]Record
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

type memoryKey struct {
	location string
	week     string
}

// NewMemoryStore creates a new in-memory store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[memoryKey]Record),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store that drops records older
// than ttl. Cleanup runs every cleanupInterval (one minute if non-positive).
//
// The cleanup goroutine must be stopped by calling Stop.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		records:       make(map[memoryKey]Record),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine and blocks until it exits.
// Calling Stop multiple times or on a store without TTL is safe.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, r := range s.records {
		if now.Sub(r.ComputedAt) > s.ttl {
			delete(s.records, k)
		}
	}
}

// Put stores r unless a record for the same location and week is present.
func (s *MemoryStore) Put(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if r.ComputedAt.IsZero() {
		r.ComputedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{location: r.Location, week: weekKey(r.WeekStart)}
	if _, exists := s.records[k]; !exists {
		s.records[k] = r
	}
	return nil
}

// Get returns the record for location and weekStart.
func (s *MemoryStore) Get(ctx context.Context, location string, weekStart time.Time) (Record, bool, error) {
	select {
	case <-ctx.Done():
		return Record{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, found := s.records[memoryKey{location: location, week: weekKey(weekStart)}]
	return r, found, nil
}

// Ping always succeeds; it lets MemoryStore stand in wherever a health
// check is expected.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of records currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
