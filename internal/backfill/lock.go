package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	ioatomic "github.com/fundingobservatory/observatory/internal/io"
)

// lockDoc is the contents of the lock file (spec.md §4.4: "a concurrent
// second backfill is prevented by a lock file; a stale lock (older than
// lock_ttl) may be reclaimed").
type lockDoc struct {
	JobID      string    `json:"job_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ErrLocked is returned when a live (non-stale) lock is already held.
type ErrLocked struct {
	HeldBy     string
	AcquiredAt time.Time
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("backfill: locked by job %s since %s", e.HeldBy, e.AcquiredAt.Format(time.RFC3339))
}

// acquireLock takes the lock at path, reclaiming it if the existing holder
// is older than ttl, and returns a release func. Callers must defer release
// immediately on success.
func acquireLock(path string, ttl time.Duration, jobID string) (func(), error) {
	if existing, err := readLock(path); err == nil {
		if time.Since(existing.AcquiredAt) < ttl {
			return nil, &ErrLocked{HeldBy: existing.JobID, AcquiredAt: existing.AcquiredAt}
		}
	}

	doc := lockDoc{JobID: jobID, AcquiredAt: time.Now()}
	if err := ioatomic.WriteJSONAtomic(path, doc); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(path) }, nil
}

func readLock(path string) (lockDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return lockDoc{}, err
	}
	var d lockDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return lockDoc{}, err
	}
	return d, nil
}
