// Package internal provides the main application initialization and runtime logic.
package internal

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
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/eihwaz/internal/abort"
	"github.com/starford/eihwaz/internal/api"
	"github.com/starford/eihwaz/internal/repo"
	"github.com/starford/eihwaz/internal/service"
	"github.com/starford/eihwaz/internal/shadow"
	"github.com/starford/eihwaz/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("projects_path", cfg.Projects.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("trunk_branch", cfg.Git.TrunkBranch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the projects directory exists.
	if err := os.MkdirAll(cfg.Projects.Path, 0o755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}

	// Project repositories.
	resolver, err := repo.NewResolver(cfg.Projects.Path, cfg.Git.TrunkBranch,
		cfg.Git.AuthorName, cfg.Git.AuthorEmail, cfg.Git.CommandTimeout)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	// Shadow database.
	db, err := shadow.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init shadow db: %w", err)
	}
	defer db.Close()

	svc := service.NewService(resolver, db, logger)

	// Run initial sync so search reflects whatever is on disk at startup.
	if err := shadow.Sync(ctx, db, resolver, svc.Ledger(), svc.Artefacts(), logger); err != nil {
		logger.Warn("initial shadow sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	aborts := abort.NewRegistry()
	apiRouter := api.NewRouter(svc, aborts, broker, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch project directories and keep the shadow database current.
	g.Go(func() error {
		err := shadow.Watch(gCtx, db, resolver, svc.Ledger(), svc.Artefacts(), logger, func(kind, projectID string) {
			broker.PublishProjectEvent(kind, projectID, "")
		})
		if err != nil {
			logger.Warn("shadow watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
