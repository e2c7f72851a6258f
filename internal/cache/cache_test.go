package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/cache"
	"github.com/JakeFAU/bizq-orchestrator/internal/cache/memory"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// brokenBackend fails every call, standing in for an unreachable store.
type brokenBackend struct{}

var errDown = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (brokenBackend) Clear(context.Context) error        { return errDown }
func (brokenBackend) Len(context.Context) (int64, error) { return 0, errDown }

// garbageBackend returns undecodable bytes for every key.
type garbageBackend struct{ brokenBackend }

func (garbageBackend) Get(context.Context, string) ([]byte, bool, error) {
	return []byte("not-json"), true, nil
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	clk := fixedClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	return cache.New(memory.New(clk), zap.NewNop(), cache.Options{Clock: clk, RecentEntries: 3})
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	yes := true
	want := []orchestrator.Candidate{
		{Name: "CrumbCraft", Available: &yes, TLD: "com"},
		{Name: "ArtisanLoaf", TLD: "com"},
	}

	s.Set(ctx, "k1", "bakery", want, 0)
	got, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, want, got)
	require.Equal(t, cache.DefaultTTL, s.TTL())
}

func TestStoreMissCountsAndHitRate(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	_, ok := s.Get(ctx, "absent")
	require.False(t, ok)
	s.Set(ctx, "k", "general", []orchestrator.Candidate{{Name: "x"}}, time.Minute)
	_, ok = s.Get(ctx, "k")
	require.True(t, ok)
	_, ok = s.Get(ctx, "k")
	require.True(t, ok)

	stats := s.Stats(ctx)
	require.Equal(t, int64(1), stats.Size)
	require.Equal(t, int64(2), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, "66.7%", stats.HitRate)
}

func TestStoreFailSoft(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := cache.New(brokenBackend{}, zap.NewNop(), cache.Options{})

	require.NotPanics(t, func() {
		s.Set(ctx, "k", "general", []orchestrator.Candidate{{Name: "x"}}, time.Minute)
	})
	_, ok := s.Get(ctx, "k")
	require.False(t, ok)

	stats := s.Stats(ctx)
	require.Zero(t, stats.Size)
	require.Equal(t, int64(1), stats.Misses)
	require.Empty(t, stats.Entries)
	require.Error(t, s.Clear(ctx))
}

func TestStoreUndecodableValueIsMiss(t *testing.T) {
	t.Parallel()

	s := cache.New(garbageBackend{}, zap.NewNop(), cache.Options{})
	_, ok := s.Get(context.Background(), "k")
	require.False(t, ok)
}

func TestStoreRecentEntriesBoundedNewestFirst(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	for i := range 5 {
		s.Set(ctx, fmt.Sprintf("k%d", i), "marketing", []orchestrator.Candidate{{Name: "x"}}, time.Minute)
	}

	entries := s.Stats(ctx).Entries
	require.Len(t, entries, 3)
	require.Equal(t, "k4", entries[0].Key)
	require.Equal(t, "k2", entries[2].Key)
	require.Equal(t, "marketing", entries[0].Type)
}

func TestStoreClearResetsCounters(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	s.Set(ctx, "k", "general", []orchestrator.Candidate{{Name: "x"}}, time.Minute)
	_, _ = s.Get(ctx, "k")
	_, _ = s.Get(ctx, "other")

	require.NoError(t, s.Clear(ctx))
	stats := s.Stats(ctx)
	require.Zero(t, stats.Size)
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	require.Equal(t, "0%", stats.HitRate)
	require.Empty(t, stats.Entries)

	_, ok := s.Get(ctx, "k")
	require.False(t, ok)
}

func TestHitRate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0%", cache.HitRate(0, 0))
	require.Equal(t, "100.0%", cache.HitRate(4, 0))
	require.Equal(t, "50.0%", cache.HitRate(1, 1))
}
