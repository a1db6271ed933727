// Package internal provides application initialization and runtime logic
// for the agent and server entrypoints.
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

	"github.com/dstanfill/inkwell/internal/agentapi"
	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/sse"
	"github.com/dstanfill/inkwell/internal/syncer"
)

// RunAgent starts the local capture agent with the given options.
func RunAgent(ctx context.Context, opts ...AgentOption) error {
	app := &agentApp{}

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
		slog.String("queue_path", cfg.Queue.Path),
		slog.Bool("remote_enabled", cfg.Remote.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the durable capture queue.
	db, err := queue.Open(cfg.Queue.Path, cfg.Queue.MaxEntries, cfg.Queue.MaxRetries)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}
	defer db.Close()

	// SSE broker for popup/UI consumers.
	broker := sse.NewBroker(2 * time.Second)

	// Sync engine, only when a remote endpoint is configured.
	var engine *syncer.Engine
	if cfg.Remote.Enabled() {
		transport := syncer.NewTransport(
			cfg.Remote.URL,
			syncer.NewStaticTokenSource(cfg.Remote.Token),
			cfg.Remote.BatchSize,
			logger,
		)
		engine = syncer.NewEngine(db, transport, broker, logger, syncer.Options{
			Interval: cfg.Remote.Interval,
			Retain:   cfg.Queue.RetainSynced,
		})
	}

	// Ingress: engine may be nil, ingress tolerates that.
	var requester ingress.Syncer
	if engine != nil {
		requester = engine
	}
	ing := ingress.NewService(db, requester, broker, logger)

	// Build the loopback HTTP surface.
	var apiEngine agentapi.Engine
	if engine != nil {
		apiEngine = engine
	}
	agentRouter := agentapi.NewRouter(ing, db, apiEngine, broker, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", agentRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Agent starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Sync engine trigger loop.
	if engine != nil {
		g.Go(func() error {
			return engine.Start(gCtx)
		})
	}

	// Spool watcher for file-dropped drafts.
	if cfg.Spool.Dir != "" {
		g.Go(func() error {
			return ingress.WatchSpool(gCtx, ing, cfg.Spool.Dir, logger)
		})
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
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down agent...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		broker.Close()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Agent error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Agent stopped successfully")
	return nil
}
