package ping_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/features/ping"
	"github.com/robalyx/neurobot/internal/gateway/gatewaytest"
	"github.com/robalyx/neurobot/internal/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return redis.NewCache(client, zap.NewNop()), mr
}

func TestPing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"summary":{"mean":41.6}}`))
	}))
	t.Cleanup(server.Close)

	cache, mr := newCache(t)
	gw := gatewaytest.New()
	gw.Ping = 87 * time.Millisecond

	f := ping.New(feature.Deps{Gateway: gw, Cache: cache, Logger: zap.NewNop()},
		ping.WithMetricsURL(server.URL), ping.WithHTTPClient(server.Client()))

	for range 2 {
		i := gatewaytest.NewCommand(1, "ping", "", nil)
		require.NoError(t, f.HandleCommand(t.Context(), i))
		assert.Equal(t, "Client WebSocket ping: `87ms`\nDiscord API ping: `42ms`", i.LastContent())
	}
	assert.Equal(t, int32(1), calls.Load())

	mr.FastForward(61 * time.Second)

	i := gatewaytest.NewCommand(1, "ping", "", nil)
	require.NoError(t, f.HandleCommand(t.Context(), i))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPingUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	f := ping.New(feature.Deps{
		Gateway: gatewaytest.New(),
		Cache:   redis.NewCache(nil, zap.NewNop()),
		Logger:  zap.NewNop(),
	}, ping.WithMetricsURL(server.URL))

	i := gatewaytest.NewCommand(1, "ping", "", nil)
	require.NoError(t, f.HandleCommand(t.Context(), i))
	assert.Equal(t, "Client WebSocket ping: `N/A (retry in a minute)`\nDiscord API ping: `N/A (failed)`", i.LastContent())
}
