// Package recon implements idempotent server-side ingest: every inbound
// capture is classified as new, duplicate, or failed independently of the
// rest of its batch.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/record"
)

// DedupWindow is the time range within which two captures with identical
// normalized text are considered the same logical event.
const DedupWindow = 60 * time.Second

// Item is one inbound capture on the ingest wire.
type Item struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	AudioRef   string            `json:"audio_ref,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Source     capture.Source    `json:"source"`
}

// ItemError is a per-item rejection reported back to the client.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result holds the per-item verdicts for one ingest batch.
type Result struct {
	Successful []string    `json:"successful"`
	Duplicates []string    `json:"duplicates"`
	Failed     []ItemError `json:"failed"`
}

// Service classifies and persists inbound captures.
type Service struct {
	db     *record.DB
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

// NewService creates a reconciliation service over the given record store.
func NewService(db *record.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger, window: DedupWindow, now: time.Now}
}

// Ingest processes a batch of captures. Each item is handled on its own: a
// bad item is reported in Failed and never aborts the remaining items.
func (s *Service) Ingest(ctx context.Context, items []Item) Result {
	res := Result{
		Successful: []string{},
		Duplicates: []string{},
		Failed:     []ItemError{},
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			// Client is gone; remaining items stay pending on its side.
			s.logger.Warn("ingest: aborted mid-batch", slog.String("error", err.Error()))
			return res
		}
		switch verdict, err := s.ingestOne(item); {
		case err != nil:
			res.Failed = append(res.Failed, ItemError{ID: item.ID, Error: err.Error()})
		case verdict == verdictDuplicate:
			res.Duplicates = append(res.Duplicates, item.ID)
		default:
			res.Successful = append(res.Successful, item.ID)
		}
	}

	s.logger.Info("ingest: batch processed",
		slog.Int("items", len(items)),
		slog.Int("new", len(res.Successful)),
		slog.Int("duplicates", len(res.Duplicates)),
		slog.Int("failed", len(res.Failed)))
	return res
}

type verdict int

const (
	verdictNew verdict = iota
	verdictDuplicate
)

func (s *Service) ingestOne(item Item) (verdict, error) {
	if err := validate(item); err != nil {
		return verdictNew, err
	}

	// Idempotency by client id first: retries of the same logical capture
	// always carry the same id.
	existing, err := s.db.GetByID(item.ID)
	if err != nil {
		return verdictNew, fmt.Errorf("lookup by id: %w", err)
	}
	if existing != nil {
		return verdictDuplicate, nil
	}

	// Then by content within the dedup window, which guards against id
	// regeneration after local storage loss on the client.
	normalized := capture.Normalize(item.Text)
	fp := capture.Fingerprint(normalized)
	match, err := s.db.FindByContent(fp, item.CapturedAt, s.window)
	if err != nil {
		return verdictNew, fmt.Errorf("lookup by content: %w", err)
	}
	if match != nil {
		s.logger.Debug("ingest: content duplicate",
			slog.String("id", item.ID), slog.String("merged_into", match.ID))
		return verdictDuplicate, nil
	}

	err = s.db.Insert(record.Record{
		ID:          item.ID,
		Text:        item.Text,
		Fingerprint: fp,
		AudioRef:    item.AudioRef,
		Context:     item.Context,
		CapturedAt:  item.CapturedAt,
		Source:      item.Source,
		CreatedAt:   s.now(),
	})
	if errors.Is(err, record.ErrDuplicateID) {
		// Lost a race with a concurrent retry of the same capture.
		return verdictDuplicate, nil
	}
	if err != nil {
		return verdictNew, fmt.Errorf("insert: %w", err)
	}
	return verdictNew, nil
}

func validate(item Item) error {
	d := capture.Draft{Text: item.Text, Source: item.Source}
	if item.ID == "" {
		return fmt.Errorf("id is required")
	}
	if item.CapturedAt.IsZero() {
		return fmt.Errorf("captured_at is required")
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if capture.Normalize(item.Text) == "" {
		return fmt.Errorf("text is blank")
	}
	return nil
}
