package agentapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/testutil"
)

type fakeEngine struct {
	status   queue.SyncStatus
	requests int
}

func (f *fakeEngine) RequestSync()             { f.requests++ }
func (f *fakeEngine) Status() queue.SyncStatus { return f.status }

func testEnv(t *testing.T, maxEntries int) (*queue.DB, *fakeEngine, http.Handler) {
	t.Helper()
	db := testutil.TestQueue(t, maxEntries, queue.DefaultMaxRetries)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := &fakeEngine{}
	ing := ingress.NewService(db, nil, nil, logger)
	return db, eng, NewRouter(ing, db, eng, nil, logger)
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateCapture(t *testing.T) {
	db, _, router := testEnv(t, queue.DefaultMaxEntries)

	w := postJSON(router, "/captures", `{"text":"note to self","source":"extension","context":{"url":"https://example.com"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var c capture.Capture
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.ID == "" || c.SyncState != capture.StatePending {
		t.Errorf("capture = %+v", c)
	}

	stored, err := db.Get(c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Context["url"] != "https://example.com" {
		t.Errorf("context = %v", stored.Context)
	}
}

func TestCreateCaptureValidation(t *testing.T) {
	_, _, router := testEnv(t, queue.DefaultMaxEntries)

	if w := postJSON(router, "/captures", `{"text":"","source":"extension"}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", w.Code)
	}
	if w := postJSON(router, "/captures", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", w.Code)
	}
}

func TestCreateCaptureQueueFull(t *testing.T) {
	_, _, router := testEnv(t, 1)

	if w := postJSON(router, "/captures", `{"text":"one","source":"api"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first: status = %d", w.Code)
	}
	if w := postJSON(router, "/captures", `{"text":"two","source":"api"}`); w.Code != http.StatusInsufficientStorage {
		t.Errorf("second: status = %d, want 507", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	_, eng, router := testEnv(t, queue.DefaultMaxEntries)
	eng.status = queue.SyncStatus{Online: true, LastSyncAt: time.Now().UTC()}

	if w := postJSON(router, "/captures", `{"text":"pending one","source":"web"}`); w.Code != http.StatusAccepted {
		t.Fatal("seed capture failed")
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var res StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Online {
		t.Error("expected online")
	}
	if res.Counts[capture.StatePending] != 1 {
		t.Errorf("pending count = %d, want 1", res.Counts[capture.StatePending])
	}
}

func TestListPending(t *testing.T) {
	_, _, router := testEnv(t, queue.DefaultMaxEntries)

	postJSON(router, "/captures", `{"text":"a","source":"api"}`)
	postJSON(router, "/captures", `{"text":"b","source":"api"}`)

	req := httptest.NewRequest(http.MethodGet, "/captures/pending", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res CaptureListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Captures) != 2 {
		t.Errorf("len = %d, want 2", len(res.Captures))
	}
}

func TestTriggerSyncAndRetry(t *testing.T) {
	db, eng, router := testEnv(t, queue.DefaultMaxEntries)

	w := postJSON(router, "/sync", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("sync status = %d", w.Code)
	}
	if eng.requests != 1 {
		t.Errorf("requests = %d, want 1", eng.requests)
	}

	// Drive a capture to abandoned by failing it past the retry cap.
	w = postJSON(router, "/captures", `{"text":"gave up","source":"api"}`)
	if w.Code != http.StatusAccepted {
		t.Fatal("seed capture failed")
	}
	var c capture.Capture
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatal(err)
	}
	for range queue.DefaultMaxRetries {
		if _, err := db.ApplyVerdicts(map[string]queue.Verdict{c.ID: {Kind: queue.VerdictFailed}}); err != nil {
			t.Fatal(err)
		}
	}

	w = postJSON(router, "/captures/retry", "")
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body = %s", w.Code, w.Body.String())
	}
	var res RetryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Requeued != 1 {
		t.Errorf("requeued = %d, want 1", res.Requeued)
	}
	if eng.requests != 2 {
		t.Errorf("requests = %d, want 2 after requeue", eng.requests)
	}
}

func TestEventsStream(t *testing.T) {
	db := testutil.TestQueue(t, queue.DefaultMaxEntries, queue.DefaultMaxRetries)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ing := ingress.NewService(db, nil, nil, logger)

	sseStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {}\n\n"))
	})
	router := NewRouter(ing, db, nil, sseStub, logger)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content-type = %q", got)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("data:")) {
		t.Errorf("body = %q", w.Body.String())
	}
}
