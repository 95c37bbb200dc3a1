// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects repositories, services,
// handlers and middleware, and it owns the resources that must be released
// on shutdown (the database).
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB            → AuthService  → AuthHandler
//	  filesystem|s3 store  → PhotoService → PhotoHandler
//	  cookie|jwt sessions  → LoadIdentity middleware, AuthHandler
//	  templates fs.FS      → PageHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/photo-gallery/internal/auth"
	"github.com/sakif/photo-gallery/internal/config"
	"github.com/sakif/photo-gallery/internal/handler"
	"github.com/sakif/photo-gallery/internal/middleware"
	"github.com/sakif/photo-gallery/internal/repository"
	"github.com/sakif/photo-gallery/internal/repository/filesystem"
	"github.com/sakif/photo-gallery/internal/repository/s3store"
	sqliteRepo "github.com/sakif/photo-gallery/internal/repository/sqlite"
	"github.com/sakif/photo-gallery/internal/service"
	"github.com/sakif/photo-gallery/web"
)

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB // owned by the server, closed on shutdown
}

// New creates a Server from a validated config.
//
// Each layer only receives what it needs:
//   - services get repository interfaces (not the concrete sqlite.DB)
//   - handlers get services (not repositories)
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := OpenDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
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

// OpenDatabase creates the database directory if needed and opens the
// credential store. The CLI uses it too.
func OpenDatabase(path string) (*sqliteRepo.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// newPhotoStore builds the backend named by cfg.Driver.
func newPhotoStore(ctx context.Context, cfg config.StorageConfig) (repository.PhotoStore, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return s3store.NewFromOptions(ctx, s3store.Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	case config.StorageDriverFilesystem, "":
		return filesystem.New(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newSessions builds the session mechanism named by cfg.Driver.
func newSessions(cfg config.SessionConfig) (auth.Sessions, error) {
	opts := auth.CookieOptions{
		Name:   cfg.CookieName,
		MaxAge: cfg.MaxAge.Duration,
		Secure: cfg.Secure,
	}

	switch cfg.Driver {
	case config.SessionDriverJWT:
		tokens, err := auth.NewTokenService(cfg.Secret, cfg.MaxAge.Duration)
		if err != nil {
			return nil, err
		}
		return auth.NewTokenSessions(tokens, opts), nil
	case config.SessionDriverCookie, "":
		return auth.NewCookieSessions([]byte(cfg.Secret), opts), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
	}
}

// dirOrEmbedded returns os.DirFS(dir), or the embedded files when dir is empty.
func dirOrEmbedded(dir string, embedded func() fs.FS) fs.FS {
	if dir == "" {
		return embedded()
	}
	return os.DirFS(dir)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                               → index page
// GET    /{page}                         → any other page template
// GET    /static/*                       → static files
// GET    /uploads/{year}/{filename}      → stored photo
// POST   /upload                         → upload form target      (admin)
// POST   /register, /login               → auth forms
// GET    /logout                         → end session
// GET    /api/photos/{year}              → list photos (JSON)
// DELETE /api/photos/{year}/{filename}   → delete photo (JSON)     (admin)
// GET    /api/me                         → current identity (JSON)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Recoverer: catches panics and returns 500 instead of crashing
// 5. LoadIdentity: resolves the session once for every handler
func (s *Server) setupRoutes() error {
	sessions, err := newSessions(s.config.Session)
	if err != nil {
		return fmt.Errorf("creating sessions: %w", err)
	}
	flashes := auth.NewFlashes([]byte(s.config.Session.Secret), auth.CookieOptions{
		Name:   s.config.Session.CookieName,
		Secure: s.config.Session.Secure,
	})

	store, err := newPhotoStore(context.Background(), s.config.Storage)
	if err != nil {
		return fmt.Errorf("creating photo store: %w", err)
	}

	// === Services ===
	authService := service.NewAuthService(s.db, auth.NewPasswordService(), s.logger)
	photoService := service.NewPhotoService(store, service.RealClock{}, s.logger)

	// === Handlers ===
	pageHandler, err := handler.NewPageHandler(
		dirOrEmbedded(s.config.TemplateDir, web.Templates),
		flashes, s.config.DefaultYear, s.logger,
	)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	photoHandler := handler.NewPhotoHandler(photoService, flashes, s.config.DefaultYear, s.config.Upload.MaxBytes, s.logger)
	authHandler := handler.NewAuthHandler(authService, sessions, flashes, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(auth.LoadIdentity(sessions))

	// === Static Files ===
	staticFS := dirOrEmbedded(s.config.StaticDir, web.Static)
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	s.router.Get("/uploads/{year}/{filename}", photoHandler.HandleServe)

	// === Page-flow Routes ===
	s.router.Get("/", pageHandler.HandlePage)
	s.router.Get("/{page}", pageHandler.HandlePage)
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Get("/logout", authHandler.HandleLogout)

	s.router.With(auth.RequireAdminRedirect(func(r *http.Request) string {
		return handler.GalleryURL(s.config.DefaultYear)
	})).Post("/upload", photoHandler.HandleUpload)

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/me", authHandler.HandleMe)
		r.Get("/photos/{year}", photoHandler.HandleList)
		r.With(auth.RequireAdminAPI).Delete("/photos/{year}/{filename}", photoHandler.HandleDelete)
	})

	return nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (http.shutdown_timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.HTTP.ReadTimeout.Duration,
		WriteTimeout: s.config.HTTP.WriteTimeout.Duration,
		IdleTimeout:  s.config.HTTP.IdleTimeout.Duration,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.Database.Path),
			slog.String("storage", s.config.Storage.Driver),
			slog.String("sessions", s.config.Session.Driver),
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

		ctx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout.Duration)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
