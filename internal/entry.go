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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-kb/tessera/internal/api"
	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/events"
	"github.com/tessera-kb/tessera/internal/indexer"
	"github.com/tessera-kb/tessera/internal/mcpserver"
	"github.com/tessera-kb/tessera/internal/search"
	"github.com/tessera-kb/tessera/internal/storage"
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

	// Initialize structured JSON logger. In MCP mode stdout carries the
	// protocol, so logs go to stderr.
	logSink := os.Stdout
	if app.mcpMode {
		logSink = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logSink, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("mosaic_path", cfg.Mosaic.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the mosaic layout exists.
	storeCfg := storage.DefaultConfig(cfg.Mosaic.Path)
	if cfg.Mosaic.MaxAttachmentSize > 0 {
		storeCfg.MaxAttachmentSize = cfg.Mosaic.MaxAttachmentSize
	}
	for _, dir := range []string{
		cfg.Mosaic.Path,
		filepath.Join(cfg.Mosaic.Path, storeCfg.NotesDir),
		filepath.Join(cfg.Mosaic.Path, storeCfg.AttachmentsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mosaic dir: %w", err)
		}
	}

	// Initialize storage.
	store, err := storage.New(storeCfg, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite database.
	db, err := database.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Event bus for index lifecycle events.
	bus := events.NewBus()
	defer bus.Close()

	// Indexer.
	ixCfg := indexer.DefaultConfig()
	if cfg.Indexer.DebounceMS > 0 {
		ixCfg.Debounce = cfg.Indexer.Debounce()
	}
	if cfg.Indexer.SweepMS > 0 {
		ixCfg.SweepInterval = cfg.Indexer.SweepInterval()
	}
	if cfg.Indexer.MaxFileSize > 0 {
		ixCfg.Filter.MaxFileSize = cfg.Indexer.MaxFileSize
	}
	if len(cfg.Indexer.ExcludeGlobs) > 0 {
		ixCfg.Filter.ExcludeGlobs = cfg.Indexer.ExcludeGlobs
	}
	ixCfg.Filter.IncludeHidden = cfg.Indexer.IncludeHidden
	ix := indexer.New(ixCfg, store, db, bus, logger)

	// Initial sync: warm the checksum cache from durable state, then
	// reconcile disk against the database.
	if err := ix.WarmCache(ctx); err != nil {
		logger.Warn("cache warm failed", slog.String("error", err.Error()))
	}
	ix.Sync(ctx)

	// Search engine.
	engine := search.New(db, search.Config{
		MaxResults:     cfg.Search.MaxResults,
		TitleBoost:     cfg.Search.TitleBoost,
		RecencyBoost:   cfg.Search.RecencyBoost,
		MaxSuggestions: cfg.Search.MaxSuggestions,
	}, logger)

	svc := api.NewService(store, db, ix, engine)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher.
	g.Go(func() error {
		return ix.Watch(gCtx)
	})

	if app.mcpMode {
		return runMCP(cancel, g, svc, logger)
	}
	return runHTTP(gCtx, cancel, g, cfg, svc, bus, store, logger)
}

func runMCP(cancel context.CancelFunc, g *errgroup.Group, svc *api.Service, logger *slog.Logger) error {
	srv := mcpserver.New(svc)
	return runStdio(cancel, g, srv.ServeStdio, logger)
}

func runStdio(cancel context.CancelFunc, g *errgroup.Group, serve func() error, logger *slog.Logger) error {
	logger.Info("Starting MCP server on stdio")

	g.Go(func() error {
		// serve returning nil (clean stdin EOF) must still stop the
		// watcher goroutine, or Wait would block forever.
		defer cancel()
		if err := serve(); err != nil {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runHTTP(ctx context.Context, cancel context.CancelFunc, g *errgroup.Group, cfg *Config, svc *api.Service, bus *events.Bus, store *storage.Storage, logger *slog.Logger) error {
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, bus, store.AttachmentsDir())

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
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the watcher and any remaining goroutines.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
