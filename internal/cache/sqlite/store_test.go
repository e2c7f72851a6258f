package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, clk *fakeClock) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache_test.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeClock{now: time.Unix(1_700_000_000, 0)})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "h1", []byte(`{"candidates":[{"name":"a"}]}`), time.Hour))
	data, ok, err := s.Get(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"candidates":[{"name":"a"}]}`, string(data))

	_, ok, err = s.Get(ctx, "h2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReplace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("one"), time.Hour))
	require.NoError(t, s.Set(ctx, "k", []byte("two"), time.Hour))

	data, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", string(data))
	n, _ := s.Len(ctx)
	require.Equal(t, int64(1), n)
}

func TestTTLExpiration(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	s := newTestStore(t, clk)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("data"), time.Second))
	clk.Advance(2 * time.Second)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	purged, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "h1", []byte("data"), time.Hour))
	require.NoError(t, s.Set(ctx, "h2", []byte("data"), time.Hour))
	require.NoError(t, s.Clear(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
