// Package cache is the local query cache in front of the database. It is
// never the source of truth: writers call Invalidate after every successful
// mutation and the realtime listener does the same for changes made by
// other clients.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradehub-admin/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// StatsKey is the key of the dashboard statistics, stale after a change to
// any table.
const StatsKey = "stats"

type entry struct {
	value   any
	expires time.Time
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	// gen is bumped by Invalidate so a load that started before the
	// invalidation does not store its stale result.
	gen   map[string]uint64
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

// New returns a Store whose entries expire after ttl; ttl <= 0 keeps entries
// until invalidated.
func New(ttl time.Duration) *Store {
	return &Store{
		entries: map[string]entry{},
		gen:     map[string]uint64{},
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && !s.now().Before(e.expires)) {
		return nil, false
	}
	return e.value, true
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value)
}

func (s *Store) set(key string, value any) {
	e := entry{value: value}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.entries[key] = e
}

func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
		s.gen[key]++
		s.group.Forget(key)
	}
	s.mu.Unlock()
	for _, key := range keys {
		metrics.CacheInvalidations.WithLabelValues(key).Inc()
	}
}

func (s *Store) InvalidateAll() {
	s.Invalidate(s.Keys()...)
}

// Keys lists the cached keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Fetch returns the cached value of key or runs load once for all concurrent
// callers asking for the same key.
func Fetch[T any](ctx context.Context, s *Store, key string, load func(context.Context) (T, error)) (T, error) {
	if value, ok := s.Get(key); ok {
		if typed, ok := value.(T); ok {
			metrics.CacheLookups.WithLabelValues(key, "hit").Inc()
			return typed, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(key, "miss").Inc()

	s.mu.RLock()
	gen := s.gen[key]
	s.mu.RUnlock()

	value, err, _ := s.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gen[key] == gen {
			s.set(key, loaded)
		}
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}
