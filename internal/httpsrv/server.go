// Package httpsrv is the watcher's local HTTP server: pprof endpoints,
// Prometheus metrics, a snapshot of the task cache and a websocket stream of
// task deltas.
package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/colonyops/taskdeck/pkg/iojson"
)

// CacheStats reports what the task cache holds. Implemented by
// taskstate.Cache.
type CacheStats interface {
	Len() int
	Resident() []string
}

// Snapshot is the body of GET /debug/cache.
type Snapshot struct {
	Resident int      `json:"resident"`
	TaskIDs  []string `json:"task_ids"`
}

// Options configures a Server. Routes whose collaborator is nil are not
// served.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:6060". Port 0 picks a free
	// port.
	Addr    string
	Cache   CacheStats
	Metrics prometheus.Gatherer
	Tasks   TaskSubscriber
	Logger  zerolog.Logger
}

type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	log        zerolog.Logger

	// cancel ends request contexts, which Shutdown does not do for hijacked
	// websocket connections.
	cancel context.CancelFunc
}

func New(opts Options) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	if stats := opts.Cache; stats != nil {
		mux.HandleFunc("GET /debug/cache", func(w http.ResponseWriter, _ *http.Request) {
			ids := stats.Resident()
			if ids == nil {
				ids = []string{}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = iojson.Write(w, Snapshot{Resident: stats.Len(), TaskIDs: ids})
		})
	}

	if opts.Tasks != nil {
		mux.Handle("GET /tasks/{id}/stream", &streamHandler{tasks: opts.Tasks, log: opts.Logger})
	}

	base, cancel := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		addr:   opts.Addr,
		log:    opts.Logger,
		cancel: cancel,
	}
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = listener

	s.log.Info().Str("addr", listener.Addr().String()).Msg("starting http server")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}
