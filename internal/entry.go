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

	"github.com/starford/spotter/internal/api"
	"github.com/starford/spotter/internal/engine"
	"github.com/starford/spotter/internal/mcpserver"
	"github.com/starford/spotter/internal/monitor"
	"github.com/starford/spotter/internal/scanner"
	"github.com/starford/spotter/internal/settings"
	"github.com/starford/spotter/internal/sse"
	"github.com/starford/spotter/internal/store"
)

// components are the pieces every command shares.
type components struct {
	db       *store.DB
	settings *settings.Manager
	engine   *engine.Engine
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	return app, nil
}

// open wires the record store, the settings and the engine. The engine is
// not running yet.
func (a *application) open(watch bool, notify engine.Notifier) (*components, error) {
	cfg := a.config
	logger := a.logger

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	mgr := settings.NewManager(cfg.Settings.Path, cfg.Settings.AliasesPath, logger)
	current := mgr.Load()
	aliases := mgr.LoadAliases()

	engOpts := []engine.Option{engine.WithDebounce(cfg.Watch.Debounce)}
	var scanOpts []scanner.Option
	if cfg.Scan.Workers > 0 {
		scanOpts = append(scanOpts, scanner.WithWorkers(cfg.Scan.Workers))
	}
	if cfg.Scan.BatchSize > 0 {
		scanOpts = append(scanOpts, scanner.WithBatchSize(cfg.Scan.BatchSize))
	}
	if len(scanOpts) > 0 {
		engOpts = append(engOpts, engine.WithScannerOptions(scanOpts...))
	}
	if watch {
		engOpts = append(engOpts, engine.WithMonitor(monitor.New(logger)))
	}
	if notify != nil {
		engOpts = append(engOpts, engine.WithNotifier(notify))
	}

	eng := engine.New(db, current, logger, engOpts...)
	eng.SetAliases(aliases)

	mgr.OnChange(func(s settings.Settings) {
		if err := eng.Reconfigure(context.Background(), s); err != nil {
			logger.Warn("settings: apply failed", slog.String("error", err.Error()))
		}
	})
	mgr.OnAliasesChange(eng.SetAliases)

	return &components{db: db, settings: mgr, engine: eng}, nil
}

func (c *components) close() {
	_ = c.db.Close()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("settings_path", cfg.Settings.Path),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	c, err := app.open(cfg.Watch.Enabled, broker.Notify)
	if err != nil {
		return err
	}
	defer c.close()
	eng := c.engine

	apiRouter := api.NewRouter(eng, c.settings, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		state := eng.State()
		if state != engine.StateReady {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"status":%q}`, state.String())
			return
		}
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
	engCtx, stopEngine := context.WithCancel(gCtx)
	defer stopEngine()

	// Engine loop: load or scan, then keep the index fresh.
	g.Go(func() error {
		if err := eng.Run(engCtx); err != nil {
			return fmt.Errorf("engine error: %w", err)
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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams end with the broker; the server would otherwise wait on them.
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stopEngine()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// runEngine runs the engine until fn returns and then stops it.
func runEngine(ctx context.Context, eng *engine.Engine, fn func(ctx context.Context) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	engCtx, stop := context.WithCancel(gCtx)
	defer stop()

	g.Go(func() error { return eng.Run(engCtx) })
	g.Go(func() error {
		defer stop()
		if err := eng.WaitReady(gCtx); err != nil {
			return err
		}
		return fn(gCtx)
	})
	return g.Wait()
}

// Search waits for the index to be built and returns the ranked results
// for query.
func Search(ctx context.Context, query string, opts ...Option) ([]engine.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.open(false, nil)
	if err != nil {
		return nil, err
	}
	defer c.close()

	var results []engine.Result
	err = runEngine(ctx, c.engine, func(context.Context) error {
		results = c.engine.Search(query)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// Scan discards the persisted records, scans every scope and reports the
// resulting status.
func Scan(ctx context.Context, opts ...Option) (engine.Status, error) {
	app, err := newApplication(opts)
	if err != nil {
		return engine.Status{}, err
	}
	c, err := app.open(false, nil)
	if err != nil {
		return engine.Status{}, err
	}
	defer c.close()

	// A cleared fingerprint makes the engine scan on start.
	if err := c.db.SetFingerprint(""); err != nil {
		return engine.Status{}, fmt.Errorf("scan: %w", err)
	}

	var status engine.Status
	err = runEngine(ctx, c.engine, func(context.Context) error {
		status = c.engine.Status()
		return nil
	})
	if err != nil {
		return engine.Status{}, fmt.Errorf("scan: %w", err)
	}
	return status, nil
}

// ServeMCP serves the index tools over stdio until the client disconnects
// or ctx is canceled.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.open(app.config.Watch.Enabled, nil)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.engine, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	engCtx, stopEngine := context.WithCancel(gCtx)
	defer stopEngine()

	g.Go(func() error { return c.engine.Run(engCtx) })
	g.Go(func() error {
		defer stopEngine()
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})
	return g.Wait()
}
