// Package cache adapts an external TTL key-value store into a fail-soft candidate cache.
//
// Values are JSON documents. Any backend or encoding failure is logged and reported to callers as
// a miss (reads) or silently dropped (writes): the cache is an optimization, never a dependency.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

// DefaultTTL is applied when Set is called with a non-positive TTL.
const DefaultTTL = time.Hour

// DefaultRecentEntries bounds the recent-entry list exposed by Stats.
const DefaultRecentEntries = 10

// ErrUnavailable classifies backend failures. It is logged, never returned by Store.
var ErrUnavailable = errors.New("cache unavailable")

// Backend is the raw TTL key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
}

// Entry is the stored document.
type Entry struct {
	Candidates []orchestrator.Candidate `json:"candidates"`
	Category   string                   `json:"category"`
	CreatedAt  time.Time                `json:"created_at"`
	TTLSeconds int64                    `json:"ttl_seconds"`
}

// RecentEntry summarizes one recent write for the stats endpoint.
type RecentEntry struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Stats reports cache performance counters.
type Stats struct {
	Size    int64         `json:"cacheSize"`
	Hits    int64         `json:"cacheHits"`
	Misses  int64         `json:"cacheMisses"`
	HitRate string        `json:"hitRate"`
	Entries []RecentEntry `json:"entries"`
}

// Options configures a Store.
type Options struct {
	TTL           time.Duration
	RecentEntries int
	Clock         orchestrator.Clock
}

// Store is the candidate cache used by the orchestrator.
type Store struct {
	backend Backend
	logger  *zap.Logger
	ttl     time.Duration
	clock   orchestrator.Clock

	hits   atomic.Int64
	misses atomic.Int64

	mu        sync.Mutex
	recent    []RecentEntry
	maxRecent int
}

// New wraps backend in a fail-soft Store.
func New(backend Backend, logger *zap.Logger, opts Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RecentEntries <= 0 {
		opts.RecentEntries = DefaultRecentEntries
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Store{
		backend:   backend,
		logger:    logger.Named("cache"),
		ttl:       opts.TTL,
		clock:     opts.Clock,
		maxRecent: opts.RecentEntries,
	}
}

// TTL returns the default entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the cached candidates for key, or false on a miss or any failure.
func (s *Store) Get(ctx context.Context, key string) ([]orchestrator.Candidate, bool) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(fmt.Errorf("%w: %w", ErrUnavailable, err)))
		s.miss("error")
		return nil, false
	}
	if !ok {
		s.miss("miss")
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Error("cache decode failed", zap.String("key", key), zap.Error(err))
		s.miss("error")
		return nil, false
	}
	s.hits.Add(1)
	metrics.ObserveCacheLookup("hit")
	return entry.Candidates, true
}

// Set stores candidates under key. A non-positive ttl uses the store default.
func (s *Store) Set(ctx context.Context, key, category string, candidates []orchestrator.Candidate, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.clock.Now()
	raw, err := json.Marshal(Entry{
		Candidates: candidates,
		Category:   category,
		CreatedAt:  now,
		TTLSeconds: int64(ttl.Seconds()),
	})
	if err != nil {
		s.logger.Error("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(fmt.Errorf("%w: %w", ErrUnavailable, err)))
		return
	}
	s.remember(RecentEntry{Key: key, Timestamp: now, Type: category})
}

// Stats returns counters, the current size, and the most recent writes (newest first).
func (s *Store) Stats(ctx context.Context) Stats {
	size, err := s.backend.Len(ctx)
	if err != nil {
		s.logger.Warn("cache size unavailable", zap.Error(err))
		size = 0
	}
	hits, misses := s.hits.Load(), s.misses.Load()

	s.mu.Lock()
	entries := make([]RecentEntry, 0, len(s.recent))
	for i := len(s.recent) - 1; i >= 0; i-- {
		entries = append(entries, s.recent[i])
	}
	s.mu.Unlock()

	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: HitRate(hits, misses),
		Entries: entries,
	}
}

// Clear empties the backend and resets counters and recent entries.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache backend: %w", err)
	}
	s.hits.Store(0)
	s.misses.Store(0)
	s.mu.Lock()
	s.recent = nil
	s.mu.Unlock()
	return nil
}

// HitRate formats hits/(hits+misses) as a percentage with one decimal, or "0%" before any lookup.
func HitRate(hits, misses int64) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(hits)/float64(total)*100)
}

func (s *Store) miss(result string) {
	s.misses.Add(1)
	metrics.ObserveCacheLookup(result)
}

func (s *Store) remember(e RecentEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, e)
	if over := len(s.recent) - s.maxRecent; over > 0 {
		s.recent = append([]RecentEntry(nil), s.recent[over:]...)
	}
}
