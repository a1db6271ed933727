// Package testutil provides shared test helpers for setting up queue and
// record databases.
package testutil

import (
	"os"
	"testing"

	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/record"
)

// TestQueue creates a temporary capture queue that is automatically
// cleaned up. Zero limits select the package defaults.
func TestQueue(t *testing.T, maxEntries, maxRetries int) *queue.DB {
	t.Helper()
	db, err := queue.Open(tempFile(t, "inkwell-queue-*.db"), maxEntries, maxRetries)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRecords creates a temporary server record store that is
// automatically cleaned up.
func TestRecords(t *testing.T) *record.DB {
	t.Helper()
	db, err := record.Open(tempFile(t, "inkwell-records-*.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tempFile(t *testing.T, pattern string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}
