// Package api serves the profiler session and dataset routes over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/harun/smprofiler/pkg/timeseries"
	"github.com/rs/zerolog"
)

// SessionStore is the registry surface the API needs.
type SessionStore interface {
	Create() profiler.Session
	List() []profiler.Session
	Describe(id string) (profiler.Session, error)
	Terminate(id string) bool
	Count() int
}

// Fetcher loads a filtered dataset.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, object string, r timeseries.TimeRange) ([]timeseries.DataPoint, error)
}

// ServerOptions holds HTTP server settings
type ServerOptions struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// FetchTimeout bounds each dataset fetch; 0 leaves only the client's deadline
	FetchTimeout time.Duration
	AllowOrigin  string
	Metrics      bool
	// Audit receives session lifecycle events; nil disables the audit log
	Audit *observability.AuditLogger
}

// Server is the profiler HTTP API
type Server struct {
	options        ServerOptions
	server         *http.Server
	sessions       SessionStore
	fetcher        Fetcher
	hub            *EventHub
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	listenerMu     sync.Mutex
	listenAddr     net.Addr
}

// NewServer creates the API server. hub may be nil to disable the event stream.
func NewServer(options ServerOptions, sessions SessionStore, fetcher Fetcher, hub *EventHub, logger zerolog.Logger) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.Port < 0 || options.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", options.Port)
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}

	observability.EnsureRegistered()

	return &Server{
		options:   options,
		sessions:  sessions,
		fetcher:   fetcher,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/profiler", s.instrument("list_sessions", s.handleListSessions))
	mux.HandleFunc("POST /api/profiler", s.instrument("create_session", s.handleCreateSession))
	mux.HandleFunc("GET /api/profiler/{name}", s.instrument("describe_session", s.handleDescribeSession))
	mux.HandleFunc("DELETE /api/profiler/{name}", s.instrument("terminate_session", s.handleTerminateSession))
	mux.HandleFunc("GET /profiler/data", s.instrument("fetch_data", s.handleFetchData))
	mux.HandleFunc("GET /profiler/dummy", s.instrument("dummy_data", s.handleDummyData))
	if s.hub != nil {
		mux.HandleFunc("GET /api/profiler/events", s.instrument("events", s.hub.HandleWebSocket))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.options.Metrics {
		mux.Handle("GET /metrics", observability.MetricsHandler())
	}
	return mux
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.listenerMu.Lock()
	if s.shuttingDown() {
		s.listenerMu.Unlock()
		ln.Close()
		return nil
	}
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}
	s.listenAddr = ln.Addr()
	srv := s.server
	s.listenerMu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting profiler API server")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("profiler API server failed: %w", err)
	}
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.listenAddr
}

// Stop refuses new requests, closes event clients, waits for in-flight requests
// up to the shutdown timeout and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down profiler API server")

	if s.hub != nil {
		s.hub.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown context cancelled, forcing close")
	}

	s.listenerMu.Lock()
	srv := s.server
	s.listenerMu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown profiler API server: %w", err)
	}

	s.logger.Info().Msg("Profiler API server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.Count()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).Seconds(),
		"sessions":      s.sessions.Count(),
		"event_clients": clients,
		"timestamp":     time.Now().UnixMilli(),
	})
}
