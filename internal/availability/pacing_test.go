package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacedDelaysSameTLD(t *testing.T) {
	t.Parallel()

	next := &stubChecker{available: true}
	p := NewPaced(next, PacingConfig{PerSecond: 10, Burst: 1})
	ctx := context.Background()

	_, err := p.Check(ctx, "first", "com")
	require.NoError(t, err)

	start := time.Now()
	available, err := p.Check(ctx, "second", "com")
	require.NoError(t, err)
	require.True(t, available)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, next.calls)
}

func TestPacedBucketsAreIndependentPerTLD(t *testing.T) {
	t.Parallel()

	next := &stubChecker{}
	p := NewPaced(next, PacingConfig{PerSecond: 0.1, Burst: 1})
	ctx := context.Background()

	_, err := p.Check(ctx, "crumbcraft", "com")
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Check(ctx, "crumbcraft", "io")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacedHonoursCancellation(t *testing.T) {
	t.Parallel()

	next := &stubChecker{}
	p := NewPaced(next, PacingConfig{PerSecond: 0.1, Burst: 1})

	_, err := p.Check(context.Background(), "one", "com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Check(ctx, "two", "com")
	require.Error(t, err)
	require.Equal(t, 1, next.calls)
}

func TestPacedDisabledNeverWaits(t *testing.T) {
	t.Parallel()

	next := &stubChecker{}
	p := NewPaced(next, PacingConfig{})
	start := time.Now()
	for i := 0; i < 20; i++ {
		_, err := p.Check(context.Background(), "n", "com")
		require.NoError(t, err)
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 20, next.calls)
}
