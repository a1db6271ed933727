package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
)

// rejectedDir is the subdirectory malformed spool files are moved into
// instead of being deleted, so nothing a user wrote is silently lost.
const rejectedDir = "rejected"

// WatchSpool starts an fsnotify watcher on the spool directory and submits
// every *.json draft dropped into it until ctx is cancelled. Files already
// present at startup are swept first, so drafts written while the agent was
// down are not missed.
//
// A successfully queued file is removed; a malformed one is moved to the
// rejected/ subdirectory.
func WatchSpool(ctx context.Context, svc *Service, dir string, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Join(dir, rejectedDir), 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("spool: started", slog.String("dir", dir))
	sweepSpool(svc, dir, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("spool: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			// Give the writing process a moment to finish the file.
			time.Sleep(50 * time.Millisecond)
			processSpoolFile(svc, dir, ev.Name, logger)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("spool: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// sweepSpool processes any *.json files already sitting in the spool dir.
func sweepSpool(svc *Service, dir string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("spool: sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		processSpoolFile(svc, dir, filepath.Join(dir, e.Name()), logger)
	}
}

func processSpoolFile(svc *Service, dir, path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("spool: read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}

	var d capture.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		logger.Warn("spool: malformed draft", slog.String("path", path), slog.String("error", err.Error()))
		rejectSpoolFile(dir, path, logger)
		return
	}
	if d.Source == "" {
		d.Source = capture.SourceAPI
	}

	c, err := svc.Submit(d)
	if errors.Is(err, apperr.ErrCapacityExceeded) {
		// Leave the file in place; the next sweep retries once the
		// queue has drained.
		logger.Warn("spool: queue full, deferring", slog.String("path", path))
		return
	}
	if err != nil {
		logger.Warn("spool: submit failed", slog.String("path", path), slog.String("error", err.Error()))
		rejectSpoolFile(dir, path, logger)
		return
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("spool: cleanup failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	logger.Info("spool: queued", slog.String("path", filepath.Base(path)), slog.String("id", c.ID))
}

func rejectSpoolFile(dir, path string, logger *slog.Logger) {
	dst := filepath.Join(dir, rejectedDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Warn("spool: reject move failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}
