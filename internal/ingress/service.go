// Package ingress accepts capture drafts from the local surfaces (HTTP,
// spool directory, MCP), assigns identity, and enqueues them durably.
package ingress

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/sse"
)

// Syncer is the subset of the sync engine ingress talks to.
type Syncer interface {
	// RequestSync nudges the engine; coalesced if a run is in flight.
	RequestSync()
	// Online reports the engine's current connectivity belief.
	Online() bool
}

// Service turns drafts into queued captures.
type Service struct {
	store  queue.Store
	syncer Syncer
	broker *sse.Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an ingress service. syncer and broker may be nil,
// in which case queued captures wait for the next scheduled sync and no
// events are published.
func NewService(store queue.Store, syncer Syncer, broker *sse.Broker, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		syncer: syncer,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// Submit validates a draft, assigns it an ID and capture time, and
// appends it to the local queue. The returned capture is the durable
// form; its ID is stable across every later sync attempt.
func (s *Service) Submit(d capture.Draft) (*capture.Capture, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	now := s.now().UTC()
	c := capture.Capture{
		ID:         capture.NewID(now),
		Text:       d.Text,
		AudioRef:   d.AudioRef,
		Context:    d.Context,
		CapturedAt: now,
		Source:     d.Source,
		SyncState:  capture.StatePending,
	}

	if err := s.store.Append(c); err != nil {
		return nil, err
	}
	s.logger.Info("capture queued",
		slog.String("id", c.ID),
		slog.String("source", string(c.Source)))

	if s.broker != nil {
		s.broker.PublishCaptureEvent(sse.EventCaptureQueued, c.ID)
	}
	// Captured-while-online syncs immediately; offline captures wait for
	// the scheduler or a connectivity flip.
	if s.syncer != nil && s.syncer.Online() {
		s.syncer.RequestSync()
	}
	return &c, nil
}
