package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/api"
	"github.com/JakeFAU/bizq-orchestrator/internal/cache"
	"github.com/JakeFAU/bizq-orchestrator/internal/config"
)

type fakeCache struct {
	stats   cache.Stats
	cleared bool
}

func (f *fakeCache) Stats(context.Context) cache.Stats { return f.stats }

func (f *fakeCache) Clear(context.Context) error {
	f.cleared = true
	return nil
}

type fakeApp struct {
	cache    *fakeCache
	reply    string
	probeErr error
	closed   bool
}

func (f *fakeApp) Close()                     { f.closed = true }
func (f *fakeApp) GetLogger() *zap.Logger     { return zap.NewNop() }
func (f *fakeApp) Handler() http.Handler      { return http.NotFoundHandler() }
func (f *fakeApp) CacheAdmin() api.CacheAdmin { return f.cache }

func (f *fakeApp) Probe(context.Context) (string, error) {
	return f.reply, f.probeErr
}

func withFakes(t *testing.T, fake *fakeApp) {
	t.Helper()
	origApp, origLoad := newApp, loadConfig
	t.Cleanup(func() { newApp, loadConfig = origApp, origLoad })

	loadConfig = func(string) (config.Config, error) {
		return config.Config{Logging: config.LoggingConfig{Level: "error"}}, nil
	}
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return fake, nil
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCacheStatsPrintsJSON(t *testing.T) {
	fake := &fakeApp{cache: &fakeCache{stats: cache.Stats{Size: 2, Hits: 3, Misses: 1, HitRate: "75.0%"}}}
	withFakes(t, fake)

	out, err := execute(t, "cache", "stats")
	require.NoError(t, err)
	require.Contains(t, out, `"cacheSize": 2`)
	require.Contains(t, out, `"hitRate": "75.0%"`)
	require.True(t, fake.closed)
}

func TestCacheClear(t *testing.T) {
	fake := &fakeApp{cache: &fakeCache{}}
	withFakes(t, fake)

	out, err := execute(t, "cache", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "cache cleared")
	require.True(t, fake.cache.cleared)
}

func TestProbe(t *testing.T) {
	fake := &fakeApp{cache: &fakeCache{}, reply: "4"}
	withFakes(t, fake)

	out, err := execute(t, "probe")
	require.NoError(t, err)
	require.Equal(t, "4\n", out)
}

func TestProbeFailure(t *testing.T) {
	fake := &fakeApp{cache: &fakeCache{}, probeErr: errors.New("no route")}
	withFakes(t, fake)

	_, err := execute(t, "probe")
	require.ErrorContains(t, err, "no route")
}

func TestConfigErrorStopsBeforeApp(t *testing.T) {
	origApp, origLoad := newApp, loadConfig
	t.Cleanup(func() { newApp, loadConfig = origApp, origLoad })

	called := false
	loadConfig = func(string) (config.Config, error) { return config.Config{}, errors.New("bad config") }
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		called = true
		return nil, nil
	}

	_, err := execute(t, "probe")
	require.ErrorContains(t, err, "bad config")
	require.False(t, called)
}

func TestResolveSessionWithoutApp(t *testing.T) {
	_, err := resolveSession(context.Background())
	require.Error(t, err)
}
