package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/history"
	"github.com/ostberg/quire/internal/mcpserver"
	"github.com/ostberg/quire/internal/session"
	"github.com/ostberg/quire/internal/sessionservice"
	"github.com/ostberg/quire/internal/storage"
)

// RunMCP serves the MCP tools over stdio. Logs go to stderr; stdout belongs
// to the MCP transport.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	snaps, err := backup.NewStore(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("init backup store: %w", err)
	}
	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	mgr := session.NewManager(store, snaps, db, session.Config{
		BackupEnabled:    cfg.Session.BackupEnabled,
		RetentionCount:   cfg.Session.BackupRetentionCount,
		RetentionAge:     cfg.Session.BackupRetentionAge(),
		FallbackEncoding: cfg.Session.FallbackEncoding,
	}, logger, nil)
	defer mgr.Stop()

	svc := sessionservice.NewService(mgr, store, snaps, db)

	logger.Info("MCP server starting on stdio",
		slog.String("workspace_path", cfg.Workspace.Path))

	return mcpserver.New(svc).ServeStdio()
}
