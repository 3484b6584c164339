package status_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/robalyx/neurobot/internal/bot/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type readiness struct {
	ready atomic.Bool
}

func (r *readiness) Ready() bool { return r.ready.Load() }

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()

	state := &readiness{}
	server := httptest.NewServer(status.NewServer(":0", state, zap.NewNop()).Routes())
	t.Cleanup(server.Close)

	get := func(path string) int {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		resp, err := server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	state.ready.Store(true)
	assert.Equal(t, http.StatusOK, get("/readyz"))
	assert.Equal(t, http.StatusNotFound, get("/missing"))
}
