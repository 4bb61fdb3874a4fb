// Package httpserver serves the published artifact tree together with the
// status, health and metrics endpoints.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ferrors "github.com/kang-git/threejs-sync-server/internal/foundation/errors"
	"github.com/kang-git/threejs-sync-server/internal/logfields"
	"github.com/kang-git/threejs-sync-server/internal/server/handlers"
	smw "github.com/kang-git/threejs-sync-server/internal/server/middleware"
)

// Options configures the listener and routes.
type Options struct {
	Addr        string
	ServeDir    string
	ReadTimeout time.Duration
	HealthPath  string
	StatusPath  string
	CyclesPath  string
	// MetricsPath is only routed when MetricsHandler is set.
	MetricsPath    string
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the single HTTP listener of the service.
type Server struct {
	opts         Options
	logger       *slog.Logger
	errorAdapter *ferrors.HTTPErrorAdapter
	monitoring   *handlers.MonitoringHandlers
	handler      http.Handler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds the route table. history may be nil.
func New(opts Options, runtime handlers.Runtime, history handlers.HistoryProvider) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	s := &Server{
		opts:         opts,
		logger:       logger,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
		monitoring:   handlers.NewMonitoringHandlers(runtime, history, opts.ServeDir, logger),
	}
	s.handler = smw.Chain(logger, s.errorAdapter)(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	if s.opts.StatusPath != "" {
		mux.HandleFunc("GET "+s.opts.StatusPath, s.monitoring.HandleStatus)
	}
	if s.opts.HealthPath != "" {
		mux.HandleFunc("GET "+s.opts.HealthPath, s.monitoring.HandleHealth)
	}
	if s.opts.CyclesPath != "" {
		mux.HandleFunc("GET "+s.opts.CyclesPath, s.monitoring.HandleCycles)
	}
	if s.opts.MetricsHandler != nil && s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.MetricsHandler)
	}
	mux.Handle("/", s.staticHandler())
	return mux
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener, failing fast when the port is taken, and serves
// in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("http server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to bind http listener").
			WithContext("addr", s.opts.Addr).
			Build()
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", logfields.Error(err))
		}
	}(s.srv, s.done)

	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()), logfields.Path(s.opts.ServeDir))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-done
	s.logger.Info("HTTP server stopped")
	return nil
}
