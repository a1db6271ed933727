package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/mcpserver"
	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/syncer"
)

// RunMCP serves the capture tools over MCP stdio against the same queue
// the agent uses. Logs go to stderr; stdout belongs to the transport.
func RunMCP(ctx context.Context, opts ...AgentOption) error {
	app := &agentApp{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := queue.Open(cfg.Queue.Path, cfg.Queue.MaxEntries, cfg.Queue.MaxRetries)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}
	defer db.Close()

	var engine *syncer.Engine
	if cfg.Remote.Enabled() {
		transport := syncer.NewTransport(
			cfg.Remote.URL,
			syncer.NewStaticTokenSource(cfg.Remote.Token),
			cfg.Remote.BatchSize,
			logger,
		)
		engine = syncer.NewEngine(db, transport, nil, logger, syncer.Options{
			Interval: cfg.Remote.Interval,
			Retain:   cfg.Queue.RetainSynced,
		})
	}

	var requester ingress.Syncer
	if engine != nil {
		requester = engine
	}
	ing := ingress.NewService(db, requester, nil, logger)

	var srvEngine mcpserver.Engine
	if engine != nil {
		srvEngine = engine
	}
	srv := mcpserver.New(ing, db, srvEngine)

	// ServeStdio returns on stdin EOF without an error; cancel explicitly
	// so the engine loop winds down too.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	if engine != nil {
		g.Go(func() error {
			return engine.Start(gCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		defer logger.Info("MCP server stopped")
		return srv.ServeStdio()
	})

	return g.Wait()
}
