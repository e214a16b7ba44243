package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DeliversDemoEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "demo-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("ANALYTICS_API_KEY", "demo-key")
	t.Setenv("ANALYTICS_ENDPOINT", srv.URL+"/events")
	t.Setenv("ANALYTICS_STORE_PATH", filepath.Join(t.TempDir(), "events.json"))
	t.Setenv("LOG_LEVEL", "error")

	err := run([]string{"--screen", "Home,Cart", "--click", "BuyButton", "--wait", "3s"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ANALYTICS_API_KEY", "")
	t.Setenv("ANALYTICS_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "error")

	require.Error(t, run(nil))
}
