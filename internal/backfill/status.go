// Package backfill implements the historical gap-fill runner of spec.md
// §4.4: given a (days, exchanges) window, enumerate every venue's contracts,
// fetch the funding-rate time series for the gap still missing from storage,
// and persist an atomically-written progress document the API's
// backfill-status endpoint and an external TUI both read.
//
// Grounded on the teacher's internal/replication/planner.go (PlannerConfig's
// MaxRetries/PlanTTL fields, uuid.New().String() job ids, a JSON state
// document updated as the job progresses) generalized from a multi-region
// replication plan to a per-(exchange,symbol) historical gap-fill plan, and
// on internal/io/atomic.go's WriteJSONAtomic for the status/lock documents.
package backfill

import (
	"encoding/json"
	"os"
	"time"

	ioatomic "github.com/fundingobservatory/observatory/internal/io"
)

// Status is the progress document spec.md §4.4 step 4 describes: "current
// exchange, contracts done/total, gaps filled, errors".
type Status struct {
	JobID               string    `json:"job_id"`
	State               string    `json:"state"` // "in_progress" | "complete"
	StartedAt           time.Time `json:"started_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	CurrentExchange     string    `json:"current_exchange"`
	ContractsDone       int       `json:"contracts_done"`
	ContractsTotal      int       `json:"contracts_total"`
	GapsFilled          int       `json:"gaps_filled"`
	Errors              []string  `json:"errors,omitempty"`
	IncompleteContracts []string  `json:"incomplete_contracts,omitempty"`
	Progress            float64   `json:"progress"`
}

// normalize applies spec.md §4.4 step 5's read-time self-heal: a status
// document stuck at "in_progress" with progress already at 100% is
// corrected to "complete" whenever it is read, not only when it is written.
func (s Status) normalize() Status {
	if s.State == "in_progress" && s.Progress >= 1.0 {
		s.State = "complete"
	}
	return s
}

// ReadStatus loads and self-heals the status document at path. A missing
// file is not an error — it means no backfill has ever run — and returns
// the zero Status. When normalize() corrects a stale in_progress/100%
// document, the correction is written back to path (spec.md Testable
// Scenario 8: "the persisted document is corrected"), so a second reader of
// the raw file never observes the stale state a prior ReadStatus call
// already fixed up in its own return value.
func ReadStatus(path string) (Status, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	var s Status
	if err := json.Unmarshal(b, &s); err != nil {
		return Status{}, err
	}
	healed := s.normalize()
	if healed.State != s.State {
		if err := writeStatus(path, healed); err != nil {
			return Status{}, err
		}
	}
	return healed, nil
}

// writeStatus persists s via atomic temp-file-then-rename (spec.md §6: "the
// backfill status document and lock file are the only filesystem-resident
// shared state; access is guarded by ... atomic write-then-rename").
func writeStatus(path string, s Status) error {
	return ioatomic.WriteJSONAtomic(path, s)
}
