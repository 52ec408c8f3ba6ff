package httpsrv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats []string

func (f fakeStats) Len() int           { return len(f) }
func (f fakeStats) Resident() []string { return f }

func startServer(t *testing.T, stats CacheStats, reg prometheus.Gatherer) *Server {
	t.Helper()

	server := New(Options{Addr: "127.0.0.1:0", Cache: stats, Metrics: reg, Logger: zerolog.Nop()})
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return server
}

func TestServer_AddrBeforeStart(t *testing.T) {
	assert.Empty(t, New(Options{Addr: "127.0.0.1:0", Logger: zerolog.Nop()}).Addr())
}

func TestServer_PprofEndpoints(t *testing.T) {
	server := startServer(t, nil, nil)
	baseURL := "http://" + server.Addr()

	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "index", endpoint: "/debug/pprof/"},
		{name: "cmdline", endpoint: "/debug/pprof/cmdline"},
		{name: "symbol", endpoint: "/debug/pprof/symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(baseURL + tt.endpoint)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestServer_CacheSnapshot(t *testing.T) {
	server := startServer(t, fakeStats{"task-1", "task-2"}, nil)

	resp, err := http.Get("http://" + server.Addr() + "/debug/cache")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 2, snap.Resident)
	assert.Equal(t, []string{"task-1", "task-2"}, snap.TaskIDs)
}

func TestServer_NoCacheEndpointWithoutStats(t *testing.T) {
	server := startServer(t, nil, nil)

	resp, err := http.Get("http://" + server.Addr() + "/debug/cache")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "taskdeck_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	server := startServer(t, nil, reg)

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "taskdeck_test_total 3")
}
