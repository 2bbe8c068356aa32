// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes, and decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go opens the store, picks a rate limiter and builds the SSO client,
// then hands them to New, which creates:
//
//	live.Hub ─┐
//	store ────┴→ booking.Engine → UserService / CatalogService → handlers
//	store → AuthService (+ SSO, TokenService) → AuthHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/booking"
	"github.com/sakif/graduation-photo/internal/config"
	"github.com/sakif/graduation-photo/internal/handler"
	"github.com/sakif/graduation-photo/internal/live"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/middleware"
	"github.com/sakif/graduation-photo/internal/ratelimit"
	"github.com/sakif/graduation-photo/internal/repository"
	"github.com/sakif/graduation-photo/internal/service"
)

// bookingBackoff is the wait unit between booking retries.
const bookingBackoff = 25 * time.Millisecond

// Deps are the outside-world dependencies main constructs. The server owns
// Store from here on and closes it on shutdown.
type Deps struct {
	Store    repository.Store
	Identity auth.IdentityValidator
	Limiter  ratelimit.Limiter
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the live hub. Start closes both during
// graceful shutdown, after in-flight requests have finished.
type Server struct {
	router  *chi.Mux
	handler http.Handler // router wrapped in CORS
	config  config.Config
	logger  *slog.Logger

	store   repository.Store
	hub     *live.Hub
	metrics *metrics.Metrics
	tokens  *auth.TokenService
}

// New creates a Server and wires every route.
func New(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Identity == nil || deps.Limiter == nil {
		return nil, errors.New("server: store, identity and limiter are required")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	m := metrics.New()
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   deps.Store,
		hub:     live.NewHub(cfg.CORSOrigins, m, logger),
		metrics: m,
		tokens:  tokens,
	}
	s.setupRoutes(deps)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Retry-After"},
	}).Handler(s.router)

	return s, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                    → database reachability
//	GET    /metrics                    → Prometheus exposition
//	POST   /login                      → SSO login (rate limited per IP)
//	POST   /refresh                    → new token pair
//	GET    /users, /campuses, /times   → public listings (?skip=&limit=)
//	GET    /campuses/{id}, /times/{id}
//	GET    /ws/times                   → live slot capacity feed
//
//	bearer token:
//	GET    /user, PUT /user, DELETE /user, GET /user/ticket
//
//	basic auth (only when ADMIN_PASSWORD_HASH is set):
//	POST   /admin/users
//	POST   /admin/campuses, PATCH|DELETE /admin/campuses/{id}
//	POST   /admin/times,    PATCH|DELETE /admin/times/{id}
//	POST   /admin/times/{id}/capacity
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique ID per request, picked up by the logger
//  2. RealIP: client IP from proxy headers, used by the login limiter
//  3. Recoverer: panics become 500 instead of crashing
//  4. metrics, then Logger. chi's response wrapper only keeps Hijack (which
//     the websocket upgrade needs) when it wraps net/http's own writer, so
//     metrics must see that writer first.
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.metrics.Middleware)
	s.router.Use(middleware.Logger(s.logger))

	retry := service.RetryPolicy{Retries: s.config.BookingRetries, Backoff: bookingBackoff}
	engine := booking.NewEngine(s.store, s.hub, s.metrics, s.logger)

	authService := service.NewAuthService(s.store, deps.Identity, s.tokens, s.metrics, s.logger)
	userService := service.NewUserService(s.store, s.store, engine, retry, s.metrics, s.logger)
	catalogService := service.NewCatalogService(s.store, s.store, engine, retry, s.metrics, s.logger)

	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	catalogHandler := handler.NewCatalogHandler(catalogService, s.logger)

	// === Public ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.With(ratelimit.Middleware(deps.Limiter, s.logger)).Post("/login", authHandler.HandleLogin)
	s.router.Post("/refresh", authHandler.HandleRefresh)

	s.router.Get("/users", userHandler.HandleList)
	s.router.Get("/campuses", catalogHandler.HandleListCampuses)
	s.router.Get("/campuses/{id}", catalogHandler.HandleGetCampus)
	s.router.Get("/times", catalogHandler.HandleListTimes)
	s.router.Get("/times/{id}", catalogHandler.HandleGetTime)
	s.router.Get("/ws/times", s.hub.ServeWS)

	// === Signed-in user ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens))
		r.Get("/user", userHandler.HandleMe)
		r.Put("/user", userHandler.HandleUpdate)
		r.Delete("/user", userHandler.HandleDelete)
		r.Get("/user/ticket", userHandler.HandleTicket)
	})

	// === Administration ===
	if !s.config.AdminEnabled() {
		s.logger.Info("ADMIN_PASSWORD_HASH not set, admin routes disabled")
		return
	}
	passwords := auth.NewPasswordService()
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin(s.config.AdminUser, s.config.AdminPasswordHash, passwords, s.logger))

		r.Post("/users", userHandler.HandleRegister)

		r.Post("/campuses", catalogHandler.HandleCreateCampus)
		r.Patch("/campuses/{id}", catalogHandler.HandleUpdateCampus)
		r.Delete("/campuses/{id}", catalogHandler.HandleDeleteCampus)

		r.Post("/times", catalogHandler.HandleCreateTime)
		r.Patch("/times/{id}", catalogHandler.HandleUpdateTime)
		r.Delete("/times/{id}", catalogHandler.HandleDeleteTime)
		r.Post("/times/{id}/capacity", catalogHandler.HandleAdjustCapacity)
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Disconnect websocket subscribers (Shutdown does not wait for hijacked
//     connections)
//  3. Wait for in-flight requests to finish (30s timeout)
//  4. Close the store (flushes SQLite's WAL, returns pooled PostgreSQL
//     connections)
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(s.hub.Close)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("dbDriver", s.config.DBDriver),
			slog.Bool("admin", s.config.AdminEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
