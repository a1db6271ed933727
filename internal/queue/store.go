package queue

import "github.com/dstanfill/inkwell/internal/capture"

// Store defines the interface for capture queue operations. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type Store interface {
	Append(c capture.Capture) error
	ListPending(limit int) ([]capture.Capture, error)
	ListAbandoned(limit int) ([]capture.Capture, error)
	ApplyVerdicts(verdicts map[string]Verdict) (ApplyStats, error)
	Prune(keep int) (int, error)
	RetryAbandoned() (int, error)
	Get(id string) (*capture.Capture, error)
	Counts() (map[capture.SyncState]int, error)
	LoadStatus() (SyncStatus, error)
	SaveStatus(s SyncStatus) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
