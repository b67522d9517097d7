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

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/supervisor"
)

// invalidateThrottle bounds how often cache.invalidated is broadcast.
const invalidateThrottle = 2 * time.Second

func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// open ensures the content directories exist, opens the search index when
// enabled and builds the supervisor. The returned closer releases the index.
func (a *application) open(logger *slog.Logger) (*supervisor.Supervisor, func(), error) {
	cfg := a.config
	for _, dir := range []string{cfg.Content.Articles.Path, cfg.Content.Notes.Path, cfg.Content.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create content dir: %w", err)
		}
	}

	opts := []supervisor.Option{supervisor.WithLogger(logger)}
	closer := func() {}
	if cfg.Search.Enabled {
		ix, err := search.Open(cfg.Search.IndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init search index: %w", err)
		}
		opts = append(opts, supervisor.WithIndex(ix))
		closer = func() {
			if err := ix.Close(); err != nil {
				logger.Warn("search index close failed", slog.String("error", err.Error()))
			}
		}
	}

	sv, err := supervisor.New(cfg.Supervisor(), opts...)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("init supervisor: %w", err)
	}
	return sv, closer, nil
}

// NewHTTPHandler builds the top-level router: request middleware, health
// endpoints and the API under /api.
func NewHTTPHandler(sv *supervisor.Supervisor, auth AuthConfig, events http.Handler) http.Handler {
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
		_, _ = fmt.Fprintf(w, `{"status":"ok","search":%t}`, sv.SearchEnabled())
	})

	r.Mount("/api", api.NewRouter(sv, auth.AuthEnabled(), auth.Token, events))
	return r
}

// Run starts the HTTP server and the content supervisor with the given
// options and blocks until a shutdown signal or ctx cancellation.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("articles_path", cfg.Content.Articles.Path),
		slog.String("notes_path", cfg.Content.Notes.Path),
		slog.Bool("search_enabled", cfg.Search.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	sv, closeIndex, err := app.open(logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	// SSE broker fed by catalog invalidations.
	broker := sse.NewBroker(invalidateThrottle)
	defer broker.Close()
	sv.OnInvalidate(broker.Notify)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHTTPHandler(sv, cfg.Auth, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	// Watch content roots and drive the indexer.
	g.Go(func() error {
		return sv.Run(gCtx)
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
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
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

// Reindex builds both catalogs, rebuilds the search index from them and
// returns.
func Reindex(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	if !app.config.Search.Enabled {
		return fmt.Errorf("reindex: %w", apperr.ErrSearchDisabled)
	}

	sv, closeIndex, err := app.open(logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	start := time.Now()
	if err := sv.Reindex(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	logger.Info("Reindex complete", slog.Duration("took", time.Since(start)))
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout while the supervisor keeps
// the catalogs and index current.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}

	sv, closeIndex, err := app.open(logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return sv.Run(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(sv).ServeStdio()
	})

	return g.Wait()
}
