// Package server wires the profiles API: it opens the store, builds the
// services and handlers, and mounts them on a chi router.
//
// Route map:
//
//	GET  /                               health
//	GET  /metrics                        Prometheus
//	GET  /api/users/{slug}               profile by slug (optional auth)
//	POST /api/users/{slug}/follow        follow   (auth, rate limited)
//	POST /api/users/{slug}/unfollow      unfollow (auth, rate limited)
//	GET  /api/me                         own profile (auth)
//	GET  /api/profile/me                 own profile, enveloped (auth)
//	GET  /api/profile/by-slug/{slug}     profile by slug, enveloped
//	GET  /api/profile/by-uid/{uid}       profile by id, enveloped
//	GET  /api/profile/about/{slug}       about section
//	POST /api/profile/about              set own about section (auth)
//	GET  /api/users/{slug}/experience    work history
//	POST /api/me/experience              add work history entry (auth)
//	PUT  /api/me/experience/{id}         replace entry, PATCH too (auth)
//	DEL  /api/me/experience/{id}         delete entry (auth)
//	GET  /api/search/users?q=&limit=     name search
//	GET  /api/network/followers          follower cards (auth)
//	POST /api/admin/backfill-slugs       slug backfill (admin key)
//	POST /api/admin/upsert-user          profile upsert (admin key)
//	GET  /auth/github/login              GitHub sign-in
//	GET  /auth/github/callback
//	POST /auth/logout
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/config"
	"github.com/DiegoCico/Neuro/internal/handler"
	"github.com/DiegoCico/Neuro/internal/middleware"
	sqliteRepo "github.com/DiegoCico/Neuro/internal/repository/sqlite"
	"github.com/DiegoCico/Neuro/internal/service"
)

// Server is the HTTP server and everything it owns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database at cfg.DBPath and builds the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath,
		sqliteRepo.WithLogger(logger),
		sqliteRepo.WithTxRetry(cfg.TxMaxAttempts, cfg.TxRetryBackoff),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupRoutes() error {
	// Global middleware, outermost first.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.AdminKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// Services. The sqlite DB is the repository for all of them.
	resolver := service.NewIdentityResolver(s.db, s.config.SlugScanLimit, s.logger)
	follows := service.NewFollowService(s.db, resolver, s.logger)
	profiles := service.NewProfileService(s.db, resolver, follows, s.logger)
	experiences := service.NewExperienceService(s.db, resolver, s.logger)
	search := service.NewSearchService(s.db, s.config.SearchScanLimit, s.logger)

	health := handler.NewHealthHandler(s.db, s.logger)
	graph := handler.NewGraphHandler(follows, s.logger)
	profile := handler.NewProfileHandler(profiles, s.logger)
	experience := handler.NewExperienceHandler(experiences, s.logger)
	searchHandler := handler.NewSearchHandler(search, s.logger)
	admin := handler.NewAdminHandler(resolver, profiles, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)
	limiter := middleware.NewRateLimiter(s.config.FollowRatePerSec, s.config.FollowRateBurst)

	s.router.Get("/", health.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Public, personalised when signed in.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth, middleware.TrackCaller)
			r.Get("/users/{slug}", profile.HandleUser)
			r.Get("/profile/by-slug/{slug}", profile.HandleProfileBySlug)
			r.Get("/profile/by-uid/{uid}", profile.HandleProfileByUID)
			r.Get("/profile/about/{slug}", profile.HandleAbout)
			r.Get("/users/{slug}/experience", experience.HandleList)
			r.Get("/search/users", searchHandler.HandleSearchUsers)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, middleware.TrackCaller)
			r.Get("/me", profile.HandleMe)
			r.Get("/profile/me", profile.HandleProfileMe)
			r.Get("/network/followers", graph.HandleFollowers)
			r.Post("/profile/about", profile.HandleSetAbout)

			r.Post("/me/experience", experience.HandleAdd)
			r.Put("/me/experience/{id}", experience.HandleUpdate)
			r.Patch("/me/experience/{id}", experience.HandleUpdate)
			r.Delete("/me/experience/{id}", experience.HandleDelete)

			r.With(limiter.Handler).Post("/users/{slug}/follow", graph.HandleFollow)
			r.With(limiter.Handler).Post("/users/{slug}/unfollow", graph.HandleUnfollow)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdminKey(auth.NewKeyHasher(), s.config.AdminKeyHash))
			r.Post("/backfill-slugs", admin.HandleBackfillSlugs)
			r.Post("/upsert-user", admin.HandleUpsertUser)
		})
	})

	// GitHub sign-in is only mounted when configured.
	if s.config.GitHubEnabled() {
		github := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		signIn := service.NewAuthService(s.db, resolver, tokens, s.logger)
		authHandler := handler.NewAuthHandler(github, signIn, tokens.TTL(), s.config.IsProduction(), s.logger)

		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID/GITHUB_CLIENT_SECRET not set, GitHub sign-in disabled")
	}

	if s.config.AdminKeyHash == "" {
		s.logger.Warn("ADMIN_KEY_HASH not set, admin routes will refuse every request")
	}

	return nil
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
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
