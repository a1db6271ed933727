package queue

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
)

func testDB(t *testing.T, maxEntries, maxRetries int) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "inkwell-queue-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name(), maxEntries, maxRetries)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newCapture(i int, at time.Time) capture.Capture {
	return capture.Capture{
		ID:         capture.NewID(at),
		Text:       fmt.Sprintf("thought %d", i),
		Context:    map[string]string{"url": "https://example.com"},
		CapturedAt: at,
		Source:     capture.SourceExtension,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t, 0, 0)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM captures`).Scan(&count); err != nil {
		t.Fatalf("captures table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM sync_meta`).Scan(&count); err != nil {
		t.Fatalf("sync_meta table missing: %v", err)
	}
	if count != 1 {
		t.Errorf("sync_meta rows = %d, want 1", count)
	}
}

func TestAppendAndGet(t *testing.T) {
	db := testDB(t, 0, 0)
	c := newCapture(1, time.Now())
	if err := db.Append(c); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := db.Get(c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != c.Text {
		t.Errorf("text = %q, want %q", got.Text, c.Text)
	}
	if got.SyncState != capture.StatePending {
		t.Errorf("state = %q, want pending", got.SyncState)
	}
	if got.Context["url"] != "https://example.com" {
		t.Errorf("context not round-tripped: %v", got.Context)
	}
	if got.SyncedAt != nil {
		t.Error("synced_at should be unset for a pending capture")
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t, 0, 0)
	if _, err := db.Get("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPendingNewestFirst(t *testing.T) {
	db := testDB(t, 0, 0)
	base := time.Now().Add(-time.Hour)
	for i := range 3 {
		if err := db.Append(newCapture(i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	pending, err := db.ListPending(0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len = %d, want 3", len(pending))
	}
	if pending[0].Text != "thought 2" || pending[2].Text != "thought 0" {
		t.Errorf("wrong order: %q ... %q", pending[0].Text, pending[2].Text)
	}
}

func TestCapacityExceededWhenSaturatedWithPending(t *testing.T) {
	db := testDB(t, 3, 0)
	base := time.Now().Add(-time.Hour)
	ids := make([]string, 0, 3)
	for i := range 3 {
		c := newCapture(i, base.Add(time.Duration(i)*time.Second))
		ids = append(ids, c.ID)
		if err := db.Append(c); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	err := db.Append(newCapture(99, time.Now()))
	if !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	// No pending capture was lost.
	for _, id := range ids {
		if _, err := db.Get(id); err != nil {
			t.Errorf("capture %s lost after rejected append: %v", id, err)
		}
	}
}

func TestAppendEvictsOldestSynced(t *testing.T) {
	db := testDB(t, 3, 0)
	base := time.Now().Add(-time.Hour)

	oldest := newCapture(0, base)
	if err := db.Append(oldest); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(newCapture(1, base.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(newCapture(2, base.Add(2*time.Second))); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ApplyVerdicts(map[string]Verdict{oldest.ID: {Kind: VerdictSynced}}); err != nil {
		t.Fatalf("ApplyVerdicts: %v", err)
	}

	// Queue is full but one row is synced and evictable.
	if err := db.Append(newCapture(3, time.Now())); err != nil {
		t.Fatalf("Append with evictable synced row: %v", err)
	}
	if _, err := db.Get(oldest.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("oldest synced capture should have been evicted, got %v", err)
	}
}

func TestApplyVerdicts(t *testing.T) {
	db := testDB(t, 0, 3)
	now := time.Now()
	ok := newCapture(1, now)
	dup := newCapture(2, now.Add(time.Second))
	bad := newCapture(3, now.Add(2*time.Second))
	for _, c := range []capture.Capture{ok, dup, bad} {
		if err := db.Append(c); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.ApplyVerdicts(map[string]Verdict{
		ok.ID:      {Kind: VerdictSynced},
		dup.ID:     {Kind: VerdictDuplicate},
		bad.ID:     {Kind: VerdictFailed, Error: "text rejected"},
		"missing1": {Kind: VerdictSynced},
	})
	if err != nil {
		t.Fatalf("ApplyVerdicts: %v", err)
	}
	if stats.Synced != 2 || stats.Failed != 1 || stats.Unknown != 1 {
		t.Errorf("stats = %+v", stats)
	}

	got, _ := db.Get(ok.ID)
	if got.SyncState != capture.StateSynced || got.SyncedAt == nil {
		t.Errorf("ok capture = %+v, want synced with timestamp", got)
	}
	got, _ = db.Get(dup.ID)
	if got.SyncState != capture.StateSynced {
		t.Errorf("duplicate verdict should mark synced, got %q", got.SyncState)
	}
	got, _ = db.Get(bad.ID)
	if got.SyncState != capture.StateFailed || got.RetryCount != 1 {
		t.Errorf("failed capture = %+v, want failed with retry 1", got)
	}

	// Failed captures still show up for the next cycle.
	pending, _ := db.ListPending(0)
	if len(pending) != 1 || pending[0].ID != bad.ID {
		t.Errorf("pending after verdicts = %v", pending)
	}
}

func TestRetryCapAbandons(t *testing.T) {
	db := testDB(t, 0, 3)
	c := newCapture(1, time.Now())
	if err := db.Append(c); err != nil {
		t.Fatal(err)
	}

	for i := range 3 {
		stats, err := db.ApplyVerdicts(map[string]Verdict{c.ID: {Kind: VerdictFailed, Error: "rejected"}})
		if err != nil {
			t.Fatalf("ApplyVerdicts %d: %v", i, err)
		}
		if i == 2 && stats.Abandoned != 1 {
			t.Errorf("third rejection should abandon, stats = %+v", stats)
		}
	}

	got, _ := db.Get(c.ID)
	if got.SyncState != capture.StateAbandoned || got.RetryCount != 3 {
		t.Fatalf("capture = %+v, want abandoned with 3 retries", got)
	}

	// Excluded from pending, but still inspectable.
	if pending, _ := db.ListPending(0); len(pending) != 0 {
		t.Errorf("abandoned capture still pending: %v", pending)
	}
	abandoned, err := db.ListAbandoned(0)
	if err != nil || len(abandoned) != 1 {
		t.Errorf("ListAbandoned = %v, %v", abandoned, err)
	}
}

func TestSyncedIsTerminal(t *testing.T) {
	db := testDB(t, 0, 0)
	c := newCapture(1, time.Now())
	if err := db.Append(c); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ApplyVerdicts(map[string]Verdict{c.ID: {Kind: VerdictSynced}}); err != nil {
		t.Fatal(err)
	}

	// A stale failed verdict must not demote the capture.
	if _, err := db.ApplyVerdicts(map[string]Verdict{c.ID: {Kind: VerdictFailed}}); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Get(c.ID)
	if got.SyncState != capture.StateSynced || got.RetryCount != 0 {
		t.Errorf("capture = %+v, want synced untouched", got)
	}
}

func TestRetryAbandoned(t *testing.T) {
	db := testDB(t, 0, 1)
	c := newCapture(1, time.Now())
	if err := db.Append(c); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ApplyVerdicts(map[string]Verdict{c.ID: {Kind: VerdictFailed}}); err != nil {
		t.Fatal(err)
	}

	n, err := db.RetryAbandoned()
	if err != nil || n != 1 {
		t.Fatalf("RetryAbandoned = %d, %v", n, err)
	}
	got, _ := db.Get(c.ID)
	if got.SyncState != capture.StatePending || got.RetryCount != 0 {
		t.Errorf("capture = %+v, want pending with fresh retry budget", got)
	}
}

func TestPruneKeepsRecentSynced(t *testing.T) {
	db := testDB(t, 0, 0)
	base := time.Now().Add(-time.Hour)
	verdicts := make(map[string]Verdict)
	for i := range 5 {
		c := newCapture(i, base.Add(time.Duration(i)*time.Minute))
		if err := db.Append(c); err != nil {
			t.Fatal(err)
		}
		verdicts[c.ID] = Verdict{Kind: VerdictSynced}
	}
	if _, err := db.ApplyVerdicts(verdicts); err != nil {
		t.Fatal(err)
	}

	removed, err := db.Prune(2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	counts, _ := db.Counts()
	if counts[capture.StateSynced] != 2 {
		t.Errorf("synced remaining = %d, want 2", counts[capture.StateSynced])
	}
}

func TestStatusRoundTrip(t *testing.T) {
	db := testDB(t, 0, 0)

	s, err := db.LoadStatus()
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if s.Online || !s.LastSyncAt.IsZero() || s.LastError != "" {
		t.Errorf("fresh status = %+v, want zero value", s)
	}

	want := SyncStatus{Online: true, LastSyncAt: time.Now().Truncate(time.Second), LastError: "boom"}
	if err := db.SaveStatus(want); err != nil {
		t.Fatalf("SaveStatus: %v", err)
	}
	got, err := db.LoadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Online || got.LastError != "boom" || !got.LastSyncAt.Equal(want.LastSyncAt) {
		t.Errorf("status = %+v, want %+v", got, want)
	}
}
