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

	"github.com/ostberg/quire/internal/api"
	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/history"
	"github.com/ostberg/quire/internal/session"
	"github.com/ostberg/quire/internal/sessionservice"
	"github.com/ostberg/quire/internal/sse"
	"github.com/ostberg/quire/internal/storage"
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
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Duration("autosave_interval", cfg.Session.AutosaveInterval()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure workspace directory exists.
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Backup snapshot store.
	snaps, err := backup.NewStore(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("init backup store: %w", err)
	}

	// Save-history catalog.
	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Session manager; document events fan out to SSE clients.
	mgr := session.NewManager(store, snaps, db, session.Config{
		BackupEnabled:    cfg.Session.BackupEnabled,
		RetentionCount:   cfg.Session.BackupRetentionCount,
		RetentionAge:     cfg.Session.BackupRetentionAge(),
		FallbackEncoding: cfg.Session.FallbackEncoding,
	}, logger, broker.PublishDocumentEvent)

	// Build the service and router.
	svc := sessionservice.NewService(mgr, store, snaps, db)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Start file watcher feeding external changes into the session.
	g.Go(func() error {
		return session.Watch(gCtx, mgr, store, cfg.Workspace.Path, logger)
	})

	// Periodic auto-save for dirty documents.
	g.Go(func() error {
		interval := cfg.Session.AutosaveInterval()
		if interval <= 0 {
			logger.Info("Auto-save disabled")
			<-gCtx.Done()
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if saved, err := mgr.AutoSaveTick(); err != nil {
					logger.Error("auto-save tick failed", slog.String("error", err.Error()))
				} else if saved > 0 {
					logger.Info("auto-save", slog.Int("saved", saved))
				}
			}
		}
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	err = g.Wait()

	// Final flush: dirty, unconflicted buffers are saved before the manager
	// stops, so a clean shutdown never loses work.
	if saved, flushErr := mgr.AutoSaveTick(); flushErr != nil {
		logger.Error("shutdown flush failed", slog.String("error", flushErr.Error()))
	} else if saved > 0 {
		logger.Info("shutdown flush", slog.Int("saved", saved))
	}
	mgr.Stop()

	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
