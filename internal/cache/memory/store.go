// Package memory provides an in-process TTL backend for the candidate cache, for development and
// single-replica deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
)

type item struct {
	value   []byte
	expires time.Time
}

// Store is a mutex-guarded map with per-entry expiry. Expired entries are evicted lazily on access.
type Store struct {
	mu    sync.RWMutex
	items map[string]item
	clock clock.Clock
}

// New constructs a Store. A nil clock uses the system clock.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		items: make(map[string]item),
		clock: clk,
	}
}

// Get returns a copy of the value stored under key if it has not expired.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.clock.Now()

	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !now.Before(it.expires) {
		s.mu.Lock()
		if cur, still := s.items[key]; still && !now.Before(cur.expires) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, true, nil
}

// Set replaces the value under key.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item{value: stored, expires: s.clock.Now().Add(ttl)}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]item)
	return nil
}

// Len evicts expired entries and returns the number of live ones.
func (s *Store) Len(context.Context) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, it := range s.items {
		if !now.Before(it.expires) {
			delete(s.items, k)
		}
	}
	return int64(len(s.items)), nil
}
