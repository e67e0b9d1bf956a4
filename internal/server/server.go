// Package server exposes health, version, metrics and the container
// registry over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zsiec/avcore/internal/config"
	apperrors "github.com/zsiec/avcore/internal/errors"
	"github.com/zsiec/avcore/internal/health"
	"github.com/zsiec/avcore/internal/logger"
	"github.com/zsiec/avcore/internal/registry"
)

// Server is the HTTP API server.
type Server struct {
	config       *config.ServerConfig
	metrics      *config.MetricsConfig
	router       *mux.Router
	httpServer   *http.Server
	logger       *logrus.Logger
	store        registry.Store
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
	limiter      *rate.Limiter

	healthInterval time.Duration

	// Additional handlers can be registered
	additionalRoutes []func(*mux.Router)
	routesReady      bool
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics serves Prometheus metrics at cfg.Path when enabled.
func WithMetrics(cfg *config.MetricsConfig) Option {
	return func(s *Server) { s.metrics = cfg }
}

// WithHealthInterval sets how often background health checks run.
func WithHealthInterval(d time.Duration) Option {
	return func(s *Server) { s.healthInterval = d }
}

// New creates a new server instance. healthMgr may be nil, in which case
// the server creates an empty manager.
func New(cfg *config.ServerConfig, log *logrus.Logger, store registry.Store, healthMgr *health.Manager, opts ...Option) *Server {
	if healthMgr == nil {
		healthMgr = health.NewManager(log)
	}

	s := &Server{
		config:           cfg,
		router:           mux.NewRouter(),
		logger:           log,
		store:            store,
		healthMgr:        healthMgr,
		errorHandler:     apperrors.NewErrorHandler(log),
		healthInterval:   30 * time.Second,
		additionalRoutes: make([]func(*mux.Router), 0),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully routed handler.
func (s *Server) Handler() http.Handler {
	s.setupRoutes()
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.healthMgr.StartPeriodicChecks(ctx, s.healthInterval)

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.ListenAddr, fmt.Sprint(s.config.Port))
}

// setupRoutes configures all routes once.
func (s *Server) setupRoutes() {
	if s.routesReady {
		return
	}
	s.routesReady = true

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	if s.metrics != nil && s.metrics.Enabled {
		s.router.Handle(s.metrics.Path, promhttp.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	if s.config.WriteTimeout > 0 {
		api.Use(s.timeoutMiddleware(s.config.WriteTimeout))
	}
	api.HandleFunc("/containers", s.handleListContainers).Methods("GET")
	api.HandleFunc("/containers/{id}", s.handleGetContainer).Methods("GET")
	api.HandleFunc("/containers/{id}", s.handleDeleteContainer).Methods("DELETE")
	api.HandleFunc("/containers/{id}/streams", s.handleContainerStreams).Methods("GET")
	// Subrouter misses do not reach the root router's handlers.
	api.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	api.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)

	if s.config.DebugEndpoints {
		s.setupDebugEndpoints()
	}

	for _, registerFunc := range s.additionalRoutes {
		registerFunc(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

// setupDebugEndpoints registers pprof and a config dump.
func (s *Server) setupDebugEndpoints() {
	s.logger.Info("Enabling debug endpoints")

	debug := s.router.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.PathPrefix("/pprof/").HandlerFunc(pprof.Index)

	debug.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]interface{}{
			"addr":            s.Addr(),
			"rate_limit":      s.config.RateLimit,
			"metrics_enabled": s.metrics != nil && s.metrics.Enabled,
			"debug_enabled":   true,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(info)
	}).Methods("GET")
}

// RegisterRoutes adds additional route handlers to the server. It must be
// called before Handler or Start.
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	s.additionalRoutes = append(s.additionalRoutes, registerFunc)
}

// HealthManager returns the server's health manager.
func (s *Server) HealthManager() *health.Manager {
	return s.healthMgr
}
