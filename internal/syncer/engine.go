// Package syncer owns sync scheduling and transport for the capture queue.
//
// The Engine is the single writer of sync state: one goroutine owns the
// trigger loop, so at most one sync run executes at a time process-wide.
// Triggers that arrive while a run is in flight coalesce into at most one
// follow-up run via a buffered wake channel.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/sse"
)

// Default scheduling parameters.
const (
	DefaultInterval      = 5 * time.Minute
	DefaultProbeInterval = 30 * time.Second
	DefaultRunTimeout    = 30 * time.Second
)

// Options tunes the engine's scheduling behavior. Zero values pick the
// package defaults.
type Options struct {
	Interval      time.Duration // periodic sync trigger
	ProbeInterval time.Duration // connectivity probe cadence while offline
	RunTimeout    time.Duration // hard deadline for one sync run
	Retain        int           // synced captures kept after pruning
}

// Engine coordinates when syncs run. All sync-time errors are absorbed
// into the persisted status; callers never see them.
type Engine struct {
	store     queue.Store
	transport *Transport
	broker    *sse.Broker
	logger    *slog.Logger

	interval      time.Duration
	probeInterval time.Duration
	runTimeout    time.Duration
	retain        int

	// wake has capacity 1: any number of overlapping triggers collapse
	// into at most one queued run.
	wake chan struct{}

	statusMu sync.RWMutex
	status   queue.SyncStatus

	runsStarted atomic.Int64
}

// NewEngine creates a sync engine. broker may be nil when no status
// consumers are attached.
func NewEngine(store queue.Store, transport *Transport, broker *sse.Broker, logger *slog.Logger, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Retain <= 0 {
		opts.Retain = queue.DefaultRetain
	}
	return &Engine{
		store:         store,
		transport:     transport,
		broker:        broker,
		logger:        logger,
		interval:      opts.Interval,
		probeInterval: opts.ProbeInterval,
		runTimeout:    opts.RunTimeout,
		retain:        opts.Retain,
		wake:          make(chan struct{}, 1),
	}
}

// Start restores persisted status and runs the trigger loop until ctx is
// cancelled. It blocks; run it under an errgroup.
func (e *Engine) Start(ctx context.Context) error {
	persisted, err := e.store.LoadStatus()
	if err != nil {
		e.logger.Warn("syncer: restore status failed", slog.String("error", err.Error()))
	} else {
		e.statusMu.Lock()
		e.status = persisted
		e.statusMu.Unlock()
	}

	// Catch up on anything queued while the process was down.
	e.RequestSync()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	probe := time.NewTicker(e.probeInterval)
	defer probe.Stop()

	e.logger.Info("syncer: started",
		slog.Duration("interval", e.interval),
		slog.Duration("run_timeout", e.runTimeout))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("syncer: stopped")
			return nil

		case <-ticker.C:
			e.RequestSync()

		case <-probe.C:
			if e.Online() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			reachable := e.transport.Probe(probeCtx)
			cancel()
			if reachable {
				e.SetOnline(true)
			}

		case <-e.wake:
			e.runOnce(ctx)
		}
	}
}

// RequestSync asks for a sync run. Safe from any goroutine; requests made
// while a run is in flight coalesce into a single follow-up run.
func (e *Engine) RequestSync() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Status returns a copy of the current sync status.
func (e *Engine) Status() queue.SyncStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Online reports current connectivity.
func (e *Engine) Online() bool {
	return e.Status().Online
}

// RunsStarted returns how many sync runs the engine has begun.
func (e *Engine) RunsStarted() int64 {
	return e.runsStarted.Load()
}

// SetOnline records a connectivity transition. Going online requests an
// immediate sync so captures queued while offline drain promptly.
func (e *Engine) SetOnline(online bool) {
	e.statusMu.Lock()
	changed := e.status.Online != online
	e.status.Online = online
	snapshot := e.status
	e.statusMu.Unlock()

	if !changed {
		return
	}
	e.persist(snapshot)
	e.publish(sse.Event{Type: sse.EventConnectivityChanged, Data: map[string]bool{"online": online}})
	e.logger.Info("syncer: connectivity changed", slog.Bool("online", online))
	if online {
		e.RequestSync()
	}
}

// runOnce executes a single sync run under the configured deadline and
// folds the outcome into the persisted status.
func (e *Engine) runOnce(ctx context.Context) {
	e.runsStarted.Add(1)

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	e.publish(sse.Event{Type: sse.EventSyncStarted, Data: map[string]string{}})

	stats, err := e.transport.Sync(runCtx, e.store)
	now := time.Now()

	switch {
	case err == nil:
		e.statusMu.Lock()
		wentOnline := stats.Batches > 0 && !e.status.Online
		if stats.Batches > 0 {
			e.status.Online = true
		}
		e.status.LastSyncAt = now
		e.status.LastError = ""
		snapshot := e.status
		e.statusMu.Unlock()
		e.persist(snapshot)

		if wentOnline {
			e.publish(sse.Event{Type: sse.EventConnectivityChanged, Data: map[string]bool{"online": true}})
		}
		if stats.Synced > 0 {
			if removed, pruneErr := e.store.Prune(e.retain); pruneErr != nil {
				e.logger.Warn("syncer: prune failed", slog.String("error", pruneErr.Error()))
			} else if removed > 0 {
				e.logger.Debug("syncer: pruned synced captures", slog.Int("removed", removed))
			}
		}
		e.publish(sse.Event{Type: sse.EventSyncCompleted, Data: stats})
		e.logger.Info("syncer: run completed",
			slog.Int("pending", stats.Pending),
			slog.Int("synced", stats.Synced),
			slog.Int("failed", stats.Failed),
			slog.Int("abandoned", stats.Abandoned))

	case errors.Is(err, apperr.ErrAuth):
		// Fatal for this run only; connectivity judgment is unchanged.
		e.recordError(err)
		e.logger.Warn("syncer: run aborted", slog.String("error", err.Error()))

	case errors.Is(err, apperr.ErrTransport) || errors.Is(err, context.DeadlineExceeded):
		e.recordError(err)
		e.SetOnline(false)
		e.logger.Warn("syncer: run failed", slog.String("error", err.Error()))

	default:
		e.recordError(err)
		e.logger.Error("syncer: run error", slog.String("error", err.Error()))
	}
}

func (e *Engine) recordError(err error) {
	e.statusMu.Lock()
	e.status.LastError = err.Error()
	snapshot := e.status
	e.statusMu.Unlock()
	e.persist(snapshot)
	e.publish(sse.Event{Type: sse.EventSyncFailed, Data: map[string]string{"error": err.Error()}})
}

func (e *Engine) persist(s queue.SyncStatus) {
	if err := e.store.SaveStatus(s); err != nil {
		e.logger.Warn("syncer: persist status failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publish(ev sse.Event) {
	if e.broker != nil {
		e.broker.Publish(ev)
	}
}
