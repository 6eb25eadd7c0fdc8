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

	"github.com/starford/lattice/internal/api"
	"github.com/starford/lattice/internal/editor"
	"github.com/starford/lattice/internal/importer"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/llm"
	"github.com/starford/lattice/internal/mcpserver"
	"github.com/starford/lattice/internal/metrics"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/sse"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/suggest"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// workspace holds what every command needs. close releases it in reverse
// order of construction.
type workspace struct {
	svc   *noteservice.Service
	db    *index.DB
	drive *importer.DriveSource
}

func (rt *workspace) close(logger *slog.Logger) {
	rt.svc.Close()
	if rt.drive != nil {
		if err := rt.drive.Teardown(); err != nil {
			logger.Warn("drive teardown failed", slog.String("error", err.Error()))
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			logger.Warn("index close failed", slog.String("error", err.Error()))
		}
	}
}

// buildProvider resolves the configured suggestion backend. A nil provider
// disables suggestions.
func buildProvider(cfg *SuggestConfig, logger *slog.Logger) (suggest.Provider, error) {
	switch cfg.Backend() {
	case ProviderOpenAI:
		p, err := llm.NewOpenAI(cfg.OpenAI(), logger)
		if err != nil {
			return nil, fmt.Errorf("init openai provider: %w", err)
		}
		return p, nil
	case ProviderLocal:
		return llm.NewLocal(cfg.MinOverlap), nil
	default:
		return nil, nil
	}
}

func (a *application) start(ctx context.Context, logger *slog.Logger, events noteservice.Publisher) (*workspace, error) {
	cfg := a.config
	rt := &workspace{}

	var idx index.NoteIndex
	if cfg.SQLite.Enabled {
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index dir: %w", err)
			}
		}
		db, err := index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		rt.db = db
		idx = db
	} else {
		logger.Warn("sqlite disabled, workspace is not persisted")
	}

	provider, err := buildProvider(&cfg.Suggest, logger)
	if err != nil {
		if rt.db != nil {
			_ = rt.db.Close()
		}
		return nil, err
	}

	var drive importer.Fetcher
	if src := cfg.Import.Drive.Source(); src.Enabled() {
		ds := importer.NewDriveSource(src, logger)
		if err := ds.Init(ctx); err != nil {
			logger.Warn("drive import unavailable", slog.String("error", err.Error()))
		} else {
			rt.drive = ds
			drive = ds
		}
	}

	svc, err := noteservice.New(noteservice.Options{
		Index:        idx,
		Provider:     provider,
		Events:       events,
		Drive:        drive,
		DefaultSpace: cfg.Workspace.DefaultSpace,
		Spaces:       cfg.Workspace.Models(),
		Editor: editor.Options{
			TitleDebounce:   cfg.Editor.TitleDebounce,
			ContentDebounce: cfg.Editor.ContentDebounce,
		},
		Suggest: suggest.Options{
			Debounce: cfg.Suggest.Debounce,
			Timeout:  cfg.Suggest.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		if rt.drive != nil {
			_ = rt.drive.Teardown()
		}
		if rt.db != nil {
			_ = rt.db.Close()
		}
		return nil, fmt.Errorf("init workspace: %w", err)
	}
	rt.svc = svc
	return rt, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("sqlite_enabled", cfg.SQLite.Enabled),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("suggest_provider", cfg.Suggest.Backend()),
		slog.String("inbox_dir", cfg.Import.InboxDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.App.GraphThrottle)
	defer broker.Close()

	rt, err := app.start(ctx, logger, broker)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Inbox watcher.
	if dir := cfg.Import.InboxDir; dir != "" {
		watcher, err := newInboxWatcher(gCtx, rt.svc, cfg.Import, logger)
		if err != nil {
			logger.Warn("inbox disabled", slog.String("dir", dir), slog.String("error", err.Error()))
		} else {
			g.Go(func() error {
				defer watcher.Teardown() //nolint:errcheck
				return watcher.Run(gCtx)
			})
		}
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
		defer signal.Stop(quit)

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

		// Stop the inbox watcher even when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

func newInboxWatcher(ctx context.Context, svc *noteservice.Service, cfg ImportConfig, logger *slog.Logger) (*importer.InboxWatcher, error) {
	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	files, err := storage.NewFS(cfg.InboxDir)
	if err != nil {
		return nil, err
	}
	w := importer.NewInboxWatcher(files.Root(), files, svc.Importer(), importer.InboxOptions{
		Debounce:          cfg.InboxDebounce,
		DeleteAfterImport: cfg.DeleteAfterImport,
		Logger:            logger,
		OnImport: func(n models.Note, path string) {
			logger.Info("inbox import", slog.String("path", path), slog.String("note_id", n.ID))
		},
	})
	if err := w.Init(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// RunMCP serves the workspace over MCP on stdio until the client
// disconnects. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	rt, err := app.start(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// RunImport imports local text files, or one Drive document when driveID
// is set, and exits. Every path is attempted; the first failure is returned.
func RunImport(ctx context.Context, paths []string, driveID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	rt, err := app.start(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	var first error
	fail := func(err error) {
		if first == nil {
			first = err
		}
	}

	if driveID != "" {
		n, err := rt.svc.ImportDrive(ctx, driveID)
		if err != nil {
			logger.Error("drive import failed", slog.String("file_id", driveID), slog.String("error", err.Error()))
			fail(err)
		} else {
			logger.Info("imported", slog.String("file_id", driveID), slog.String("note_id", n.ID))
		}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Error("read failed", slog.String("path", p), slog.String("error", err.Error()))
			fail(fmt.Errorf("read %s: %w", p, err))
			continue
		}
		n, err := rt.svc.Import(ctx, importer.TitleFromName(p), string(data))
		if err != nil {
			logger.Error("import failed", slog.String("path", p), slog.String("error", err.Error()))
			fail(err)
			continue
		}
		logger.Info("imported", slog.String("path", p), slog.String("note_id", n.ID))
	}
	return first
}
