package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

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

func testServer(t *testing.T) (*Server, *queue.DB, *fakeEngine) {
	t.Helper()

	db := testutil.TestQueue(t, queue.DefaultMaxEntries, queue.DefaultMaxRetries)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ing := ingress.NewService(db, nil, nil, logger)
	eng := &fakeEngine{}
	return New(ing, db, eng), db, eng
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// Call the tool handlers directly; mcp-go has no test transport.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "capture_thought":
		result, err = srv.captureThought(ctx, req)
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "list_pending":
		result, err = srv.listPending(ctx, req)
	case "retry_abandoned":
		result, err = srv.retryAbandoned(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCaptureThought(t *testing.T) {
	srv, db, _ := testServer(t)

	r := callTool(t, srv, "capture_thought", map[string]interface{}{
		"text": "an idea worth keeping",
	})
	if r.IsError {
		t.Fatalf("capture failed: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "queued capture ") {
		t.Errorf("result = %q", resultText(r))
	}

	pending, err := db.ListPending(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Text != "an idea worth keeping" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestCaptureThoughtWithContext(t *testing.T) {
	srv, db, _ := testServer(t)

	r := callTool(t, srv, "capture_thought", map[string]interface{}{
		"text":    "from a page",
		"context": `{"url":"https://example.com"}`,
	})
	if r.IsError {
		t.Fatalf("capture failed: %s", resultText(r))
	}

	pending, err := db.ListPending(0)
	if err != nil {
		t.Fatal(err)
	}
	if pending[0].Context["url"] != "https://example.com" {
		t.Errorf("context = %v", pending[0].Context)
	}
}

func TestCaptureThoughtMissingText(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "capture_thought", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without text")
	}
}

func TestSyncNow(t *testing.T) {
	srv, _, eng := testServer(t)
	r := callTool(t, srv, "sync_now", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("sync_now failed: %s", resultText(r))
	}
	if eng.requests != 1 {
		t.Errorf("requests = %d, want 1", eng.requests)
	}
}

func TestSyncStatus(t *testing.T) {
	srv, _, eng := testServer(t)
	eng.status = queue.SyncStatus{Online: true}

	callTool(t, srv, "capture_thought", map[string]interface{}{"text": "pending"})

	r := callTool(t, srv, "sync_status", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"online": true`) {
		t.Errorf("status = %s", text)
	}
	if !strings.Contains(text, `"pending": 1`) {
		t.Errorf("status = %s", text)
	}
}

func TestRetryAbandoned(t *testing.T) {
	srv, db, eng := testServer(t)

	callTool(t, srv, "capture_thought", map[string]interface{}{"text": "doomed"})
	pending, err := db.ListPending(0)
	if err != nil {
		t.Fatal(err)
	}
	for range queue.DefaultMaxRetries {
		if _, err := db.ApplyVerdicts(map[string]queue.Verdict{pending[0].ID: {Kind: queue.VerdictFailed}}); err != nil {
			t.Fatal(err)
		}
	}

	r := callTool(t, srv, "retry_abandoned", map[string]interface{}{})
	if got := resultText(r); got != "requeued 1 abandoned captures" {
		t.Errorf("result = %q", got)
	}
	if eng.requests != 1 {
		t.Errorf("requests = %d, want 1", eng.requests)
	}

	counts, err := db.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[capture.StatePending] != 1 {
		t.Errorf("pending = %d, want 1 after requeue", counts[capture.StatePending])
	}
}
