package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	whoisparser "github.com/likexian/whois-parser"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	available bool
	err       error
	calls     int
}

func (s *stubChecker) Check(context.Context, string, string) (bool, error) {
	s.calls++
	return s.available, s.err
}

func fakeWhois(raw string, lookupErr error, info whoisparser.WhoisInfo, parseErr error) *Whois {
	return &Whois{
		lookup: func(string) (string, error) { return raw, lookupErr },
		parse:  func(string) (whoisparser.WhoisInfo, error) { return info, parseErr },
	}
}

func TestFailOpenOnError(t *testing.T) {
	t.Parallel()

	next := &stubChecker{err: errors.New("connection reset")}
	available, err := NewFailOpen(next, zap.NewNop(), 0).Check(context.Background(), "crumbcraft", "com")
	require.NoError(t, err)
	require.True(t, available)
	require.Equal(t, 1, next.calls)
}

func TestFailOpenPassesThroughAnswers(t *testing.T) {
	t.Parallel()

	available, err := NewFailOpen(&stubChecker{available: false}, nil, time.Second).
		Check(context.Background(), "google", "com")
	require.NoError(t, err)
	require.False(t, available)
}

func TestWhoisClassification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	available, err := fakeWhois("No match", nil, whoisparser.WhoisInfo{}, whoisparser.ErrNotFoundDomain).
		Check(ctx, "CrumbCraft", "com")
	require.NoError(t, err)
	require.True(t, available)

	taken := whoisparser.WhoisInfo{Domain: &whoisparser.Domain{Domain: "google.com"}}
	available, err = fakeWhois("Domain Name: GOOGLE.COM", nil, taken, nil).Check(ctx, "google", "com")
	require.NoError(t, err)
	require.False(t, available)

	_, err = fakeWhois("", errors.New("dial tcp: timeout"), whoisparser.WhoisInfo{}, nil).Check(ctx, "x", "com")
	require.Error(t, err)

	_, err = fakeWhois("garbage", nil, whoisparser.WhoisInfo{}, nil).Check(ctx, "xyz", "com")
	require.Error(t, err)
}

func TestWhoisHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	w := &Whois{
		lookup: func(string) (string, error) {
			<-release
			return "", nil
		},
		parse: whoisparser.Parse,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Check(ctx, "slow", "com")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Wrapped in FailOpen the same stall resolves to available.
	available, err := NewFailOpen(w, zap.NewNop(), 20*time.Millisecond).Check(context.Background(), "slow", "com")
	require.NoError(t, err)
	require.True(t, available)
}

func TestDomain(t *testing.T) {
	t.Parallel()

	d, err := Domain(" Crumb Craft ", ".COM")
	require.NoError(t, err)
	require.Equal(t, "crumbcraft.com", d)

	d, err = Domain("flourpower.com", "com")
	require.NoError(t, err)
	require.Equal(t, "flourpower.com", d)

	_, err = Domain("", "com")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = Domain("name", "")
	require.ErrorIs(t, err, ErrInvalidName)
}
