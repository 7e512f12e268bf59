// Package server wires the dependency graph and runs the HTTP server.
//
//	config → sqlite.DB → services → handlers → chi router
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/ritual-archive/internal/auth"
	"github.com/sakif/ritual-archive/internal/config"
	"github.com/sakif/ritual-archive/internal/handler"
	"github.com/sakif/ritual-archive/internal/metrics"
	"github.com/sakif/ritual-archive/internal/middleware"
	sqliteRepo "github.com/sakif/ritual-archive/internal/repository/sqlite"
	"github.com/sakif/ritual-archive/internal/service"
)

// Server owns the router and the database; Start closes the database on exit.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and builds the routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// For ":memory:" the directory is "." and this is a no-op.
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := newWithDB(cfg, logger, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(cfg *config.Config, logger *slog.Logger, db *sqliteRepo.DB) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	loc, err := s.config.Ritual.Location()
	if err != nil {
		return fmt.Errorf("loading ritual timezone: %w", err)
	}

	secret := s.config.Auth.JWTSecret
	if secret == "" {
		// Sessions will not survive a restart, but the service still works.
		secret = rand.Text()
		s.logger.Warn("JWT secret not set, using a random one for this process")
	}
	tokens, err := auth.NewTokenService(secret, s.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// A nil *GitHubProvider inside the interface would not compare equal to
	// nil, so only assign when configured.
	var github handler.GitHubAuthenticator
	if gh := s.config.Auth.GitHub; gh.Enabled() {
		github = auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.CallbackURL)
	} else {
		s.logger.Info("GitHub login disabled, GITHUB_CLIENT_ID/SECRET not set")
	}

	archiveService := service.NewArchiveService(s.db, loc, s.logger)
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(auth.DefaultCost), s.logger)

	archiveHandler := handler.NewArchiveHandler(archiveService, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), s.config.Auth.CookieSecure, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(metrics.InstrumentHandler)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(s.config.Auth.RateLimit.PerSecond, s.config.Auth.RateLimit.Burst, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(limiter.Handler)

		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/users/me", authHandler.HandleMe)
		r.Get("/users/me/ritual", archiveHandler.HandleRitual)

		r.Route("/archives", func(r chi.Router) {
			r.Get("/", archiveHandler.HandleList)
			r.Post("/", archiveHandler.HandleCreate)
			// Static segments win over {id} in chi, so these never reach HandleGet.
			r.Get("/dates", archiveHandler.HandleDates)
			r.Get("/random", archiveHandler.HandleRandom)
			r.Get("/{id}", archiveHandler.HandleGet)
			r.Put("/{id}", archiveHandler.HandleReplace)
			r.Delete("/{id}", archiveHandler.HandleDelete)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to the configured shutdown timeout.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.Database.Path),
			slog.String("timezone", s.config.Ritual.Timezone),
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

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
