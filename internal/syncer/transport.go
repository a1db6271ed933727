package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/queue"
)

// DefaultBatchSize bounds how many captures travel in one ingest request.
const DefaultBatchSize = 10

// Stats summarizes one sync run.
type Stats struct {
	Pending   int `json:"pending"`
	Batches   int `json:"batches"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// Transport moves pending captures to the ingest endpoint in bounded
// batches and applies the per-item verdicts back to the queue.
type Transport struct {
	client    *http.Client
	baseURL   string
	tokens    TokenSource
	batchSize int
	logger    *slog.Logger
}

// NewTransport creates a Transport for the given ingest base URL.
// batchSize <= 0 selects DefaultBatchSize.
func NewTransport(baseURL string, tokens TokenSource, batchSize int, logger *slog.Logger) *Transport {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Transport{
		client:    &http.Client{},
		baseURL:   baseURL,
		tokens:    tokens,
		batchSize: batchSize,
		logger:    logger,
	}
}

type wireCapture struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	AudioRef   string            `json:"audio_ref,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Source     capture.Source    `json:"source"`
}

type syncRequest struct {
	Captures []wireCapture `json:"captures"`
}

type syncResponse struct {
	Successful []string `json:"successful"`
	Duplicates []string `json:"duplicates"`
	Failed     []struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	} `json:"failed"`
}

// Sync executes one full sync pass against the queue: credential, list,
// batch, send, apply. Verdicts from completed batches are applied as each
// batch returns, so a mid-run abort never rolls back partial progress.
func (t *Transport) Sync(ctx context.Context, store queue.Store) (Stats, error) {
	var stats Stats

	token, err := t.tokens.Token(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: acquire credential: %v", apperr.ErrAuth, err)
	}

	pending, err := store.ListPending(0)
	if err != nil {
		return stats, fmt.Errorf("syncer: list pending: %w", err)
	}
	stats.Pending = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}

	for start := 0; start < len(pending); start += t.batchSize {
		end := min(start+t.batchSize, len(pending))
		batch := pending[start:end]

		verdicts, err := t.sendBatch(ctx, token, batch)
		if err != nil {
			// Batch items stay pending with their retry counts untouched.
			return stats, err
		}
		stats.Batches++

		applied, err := store.ApplyVerdicts(verdicts)
		if err != nil {
			return stats, fmt.Errorf("syncer: apply verdicts: %w", err)
		}
		stats.Synced += applied.Synced
		stats.Failed += applied.Failed
		stats.Abandoned += applied.Abandoned
	}

	return stats, nil
}

// sendBatch posts one batch and converts the response into verdicts.
// Duplicates count as synced; the server already holds the capture.
func (t *Transport) sendBatch(ctx context.Context, token string, batch []capture.Capture) (map[string]queue.Verdict, error) {
	payload := syncRequest{Captures: make([]wireCapture, len(batch))}
	for i, c := range batch {
		payload.Captures[i] = wireCapture{
			ID:         c.ID,
			Text:       c.Text,
			AudioRef:   c.AudioRef,
			Context:    c.Context,
			CapturedAt: c.CapturedAt,
			Source:     c.Source,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("syncer: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/sync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("syncer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send batch: %v", apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: ingest returned %d", apperr.ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: ingest returned %d", apperr.ErrTransport, resp.StatusCode)
	}

	var sr syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperr.ErrTransport, err)
	}

	verdicts := make(map[string]queue.Verdict, len(batch))
	for _, id := range sr.Successful {
		verdicts[id] = queue.Verdict{Kind: queue.VerdictSynced}
	}
	for _, id := range sr.Duplicates {
		verdicts[id] = queue.Verdict{Kind: queue.VerdictDuplicate}
	}
	for _, f := range sr.Failed {
		t.logger.Warn("syncer: capture rejected",
			slog.String("id", f.ID), slog.String("reason", f.Error))
		verdicts[f.ID] = queue.Verdict{Kind: queue.VerdictFailed, Error: f.Error}
	}
	return verdicts, nil
}

// Probe checks reachability of the ingest service without authentication.
func (t *Transport) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health/live", nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
