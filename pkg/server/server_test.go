package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigmanauts/ergodist/pkg/testutil"
)

func TestErgoDist_Server_Endpoints(t *testing.T) {
	t.Parallel()

	ready := false
	s, err := New(Config{
		Logger: testutil.NewLogger(),
		Ready:  func() bool { return ready },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	get := func(path string) *http.Response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusOK, get("/healthz").StatusCode)
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").StatusCode)

	ready = true
	require.Equal(t, http.StatusOK, get("/readyz").StatusCode)

	resp := get("/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	require.Equal(t, http.StatusOK, get("/metrics").StatusCode)
}
