// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/feed"
	"github.com/driftline/driftline/internal/observability"
)

// ServerConfig collects the dependencies of the API server.
type ServerConfig struct {
	Addr     string
	Accounts *auth.Service
	Posts    *feed.Service
	Tokens   *auth.TokenService
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Version  string
}

// Server serves the JSON API.
type Server struct {
	addr       string
	accounts   *auth.Service
	posts      *feed.Service
	tokens     *auth.TokenService
	logger     *slog.Logger
	metrics    *observability.Metrics
	version    string
	router     *mux.Router
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if cfg.Posts == nil {
		return nil, oops.Errorf("post service is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		addr:     cfg.Addr,
		accounts: cfg.Accounts,
		posts:    cfg.Posts,
		tokens:   cfg.Tokens,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		version:  cfg.Version,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}", s.handleProfile).Methods(http.MethodGet)

	api.Handle("/posts", s.OptionalIdentity(http.HandlerFunc(s.handleFeed))).Methods(http.MethodGet)
	api.Handle("/posts", s.RequireIdentity(http.HandlerFunc(s.handleCreatePost))).Methods(http.MethodPost)
	api.Handle("/posts/{id}/like", s.RequireIdentity(http.HandlerFunc(s.handleToggleLike))).Methods(http.MethodPost)

	return r
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// countRequests records per-route request counts with the response status.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// Start begins serving the API. It returns an error channel that receives
// any serve error; the channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleHealth reports service identity and version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"service": "driftline",
		"version": s.version,
		"status":  "ok",
	})
}
