// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/auth"
	"github.com/jeremyhahn/go-mpc/pkg/correlation"
	"github.com/jeremyhahn/go-mpc/pkg/health"
	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/metrics"
	"github.com/jeremyhahn/go-mpc/pkg/ratelimit"
)

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address (default 127.0.0.1:8081)
	Addr string

	// Manager serves every /api/v1 route
	Manager *keymanager.KeyManager

	// Health backs the probe endpoints (optional)
	Health *health.Checker

	// Authenticator guards /api/v1 (optional, defaults to NoOp)
	Authenticator auth.Authenticator

	// RateLimiter throttles /api/v1 per client (optional)
	RateLimiter *ratelimit.Limiter

	// MetricsPath mounts the Prometheus handler when non-empty
	MetricsPath string

	// TLSConfig switches the listener to HTTPS (optional)
	TLSConfig *tls.Config

	Logger  logging.Logger
	Version string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the REST API server.
type Server struct {
	server        *http.Server
	router        chi.Router
	manager       *keymanager.KeyManager
	health        *health.Checker
	authenticator auth.Authenticator
	limiter       *ratelimit.Limiter
	logger        logging.Logger
	version       string
	metricsPath   string
}

// NewServer creates a REST API server over cfg.Manager.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("a key manager is required")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8081"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	readTimeout := orDefault(cfg.ReadTimeout, 30*time.Second)
	writeTimeout := orDefault(cfg.WriteTimeout, 30*time.Second)
	idleTimeout := orDefault(cfg.IdleTimeout, 120*time.Second)

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = auth.NewNoOpAuthenticator()
	}
	checker := cfg.Health
	if checker == nil {
		checker = health.NewChecker()
		checker.MarkStarted()
	}

	s := &Server{
		manager:       cfg.Manager,
		health:        checker,
		authenticator: authenticator,
		limiter:       cfg.RateLimiter,
		logger:        logging.OrNoOp(cfg.Logger),
		version:       cfg.Version,
		metricsPath:   cfg.MetricsPath,
	}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}
	return s, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)

	r.Get("/health", s.HealthHandler)
	r.Head("/health", s.HealthHandler)
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)
	r.Get("/health/startup", s.StartupHandler)
	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter, nil))
		}
		r.Use(auth.Middleware(s.authenticator, s.logger))
		r.Use(s.PrincipalMiddleware())

		r.Post("/keygen", s.KeyGenHandler)
		r.Post("/sign", s.SignHandler)
		r.Post("/verify", s.VerifyHandler)
		r.Post("/attest", s.AttestHandler)

		r.Get("/sessions", s.ListSessionsHandler)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.GetSessionHandler)
			r.Delete("/", s.DeleteSessionHandler)
			r.Get("/public-key", s.PublicKeyHandler)
			r.Get("/status", s.StatusHandler)
			r.Get("/shares/{index}", s.KeyShareHandler)
			r.Post("/rotate", s.RotateHandler)
			r.Get("/backup", s.BackupHandler)
			r.Post("/restore", s.RestoreHandler)
			r.Post("/combine", s.CombineHandler)
		})

		r.Get("/session/{id}", s.StatusHandler)
		r.Get("/key/{id}/public", s.PublicKeyHandler)

		r.Get("/audit", s.AuditHandler)
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, with TLS when a TLS config is set.
func (s *Server) Serve(ln net.Listener) error {
	scheme := "http"
	if s.server.TLSConfig != nil {
		scheme = "https"
		ln = tls.NewListener(ln, s.server.TLSConfig)
	}
	s.logger.Info("starting REST server",
		logging.String("addr", ln.Addr().String()),
		logging.String("scheme", scheme),
		logging.String("auth", s.authenticator.Name()))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("REST server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests until
// ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down REST server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
