// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: every dependency is created and
// wired in New, and nothing else in the codebase constructs a service or a
// handler.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load → slog.Logger → server.New
//	server.New: sqlite.DB → services (+ metrics, passwords, tokens) → handlers → routes
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/config"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/handler"
	"github.com/sakif/admin-panel/internal/metrics"
	"github.com/sakif/admin-panel/internal/middleware"
	sqliteRepo "github.com/sakif/admin-panel/internal/repository/sqlite"
	"github.com/sakif/admin-panel/internal/service"
)

// sessionSweepInterval is how often expired session rows are deleted.
const sessionSweepInterval = 10 * time.Minute

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the rate limiter's cleanup
// goroutine. Close releases both; Start calls it on the way out.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	limiter  *middleware.RateLimiter
	sessions *service.AuthService
}

// Option adjusts how New builds the server.
type Option func(*options)

type options struct {
	passwords *auth.PasswordService
}

// WithPasswordService replaces the production argon2id parameters. Tests use
// it with auth.NewPasswordServiceForTest to keep hashing fast.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(o *options) { o.passwords = p }
}

// New opens the database and wires every layer.
//
// Each layer only receives what it needs:
//   - services get repository interfaces (the concrete sqlite.DB satisfies all of them)
//   - handlers get services
//   - nothing but this function sees the Prometheus registry
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{passwords: auth.NewPasswordService()}
	for _, opt := range opts {
		opt(&o)
	}

	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		limiter: middleware.NewRateLimiter(middleware.PerMinute(cfg.Login.RatePerMinute, cfg.Login.Burst), logger),
	}

	if err := s.setupRoutes(o); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                             → store ping
// GET    /metrics                             → Prometheus exposition
// GET    /                                    → redirect to /users
// GET    /register, /login                    → forms
// POST   /register, /login                    → rate-limited form actions
// POST   /logout                              → end the session
// GET    /auth/github/login, /callback        → only when GitHub is configured
// GET    /users                               → listing           (signed in)
// GET    /users/{username}                    → account page      (signed in)
// POST   /users/{username}/{field}            → account actions   (signed in)
// GET    /users/{username}/profile            → profile page      (signed in)
// POST   /users/{username}/profile/{field}    → profile actions   (signed in)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP: the logger and the rate limiter read them
// 2. Logger: logs and counts every response, including recovered panics
// 3. Recoverer: turns a panic into a 500
// 4. CSRF and LoadViewer: only on the page routes
func (s *Server) setupRoutes(o options) error {
	secure := s.config.Session.CookieSecure

	// === Metrics ===
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// === Auth primitives ===
	tokens, err := auth.NewTokenService(s.config.Session.Secret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	flashes, err := flash.NewCodec(s.config.Session.Secret, secure)
	if err != nil {
		return fmt.Errorf("creating flash codec: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.GitHub.CallbackURL,
		)
		s.logger.Info("GitHub sign-in enabled", slog.String("callback", s.config.GitHub.CallbackURL))
	}

	// === Services ===
	// s.db implements every repository interface.
	authService := service.NewAuthService(s.db, s.db, tokens, o.passwords, s.config.Session.TTL, recorder, s.logger)
	registration := service.NewRegistrationService(s.db, o.passwords, recorder, s.logger)
	accounts := service.NewAccountService(s.db, s.db, recorder, s.logger)
	profiles := service.NewProfileService(s.db, s.db, recorder, s.logger)
	s.sessions = authService

	// === Handlers ===
	pages, err := handler.NewPages(flashes, s.logger)
	if err != nil {
		return err
	}
	authHandler := handler.NewAuthHandler(authService, registration, github, pages, secure, s.logger)
	userHandler := handler.NewUserHandler(accounts, profiles, pages, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, recorder))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler(registry))

	// === Page Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.CSRF(secure, s.logger))
		r.Use(auth.LoadViewer(authService, secure, s.logger))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/users", http.StatusFound)
		})

		r.Get("/register", authHandler.ShowRegister)
		r.With(s.limiter.Middleware).Post("/register", authHandler.HandleRegister)
		r.Get("/login", authHandler.ShowLogin)
		r.With(s.limiter.Middleware).Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)

		if github != nil {
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/users", userHandler.HandleList)
			r.Get("/users/{username}", userHandler.HandleDetail)
			r.Post("/users/{username}/{field}", userHandler.HandleAccountField)
			r.Get("/users/{username}/profile", userHandler.HandleProfile)
			r.Post("/users/{username}/profile/{field}", userHandler.HandleProfileField)
		})
	})

	return nil
}

// Handler returns the root handler. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the background work and closes the database.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the session sweeper and close the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepSessions(sweepCtx, sessionSweepInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// sweepSessions deletes expired sessions every interval until ctx ends.
func (s *Server) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.sessions.SweepExpiredSessions(ctx); err != nil {
				s.logger.Error("session sweep failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}
