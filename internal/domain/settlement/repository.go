package settlement

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
)

// RunRepository persists settlement run documents. Implementations enforce
// the allowed-transition tables in status.go at the write layer.
type RunRepository interface {
	// GetByDate returns the run for a business date, or ErrRunNotFound
	GetByDate(ctx context.Context, businessDate string) (*Run, error)

	// UpsertRun creates the run as PENDING on first sight and refreshes
	// close id, window and run id on an existing one, without disturbing
	// recorded step history.
	UpsertRun(ctx context.Context, businessDate string, closeID primitive.ObjectID, window closing.Window, runID string) (*Run, error)

	// MarkRunRunning moves the run to RUNNING (legal from PENDING or FAILED)
	MarkRunRunning(ctx context.Context, businessDate string) error

	// MarkStepRunning moves a step to RUNNING and increments its attempts,
	// returning the new attempt count.
	MarkStepRunning(ctx context.Context, businessDate string, step StepName) (int, error)

	// MarkStepCompleted moves a RUNNING step to COMPLETED with its result summary
	MarkStepCompleted(ctx context.Context, businessDate string, step StepName, result map[string]any) error

	// MarkRunCompleted moves a RUNNING run to its terminal COMPLETED state
	MarkRunCompleted(ctx context.Context, businessDate string) error

	// MarkRunFailed moves the run to FAILED, annotating the step that was in
	// flight with the captured cause.
	MarkRunFailed(ctx context.Context, businessDate string, step StepName, cause string) error
}

// SnapshotRepository persists the five snapshot projections. Every write is a
// full upsert keyed by business date (plus account key or seller id), so
// re-running a step replaces rather than accumulates.
type SnapshotRepository interface {
	UpsertAccountSnapshots(ctx context.Context, snapshots []AccountSnapshot) error
	UpsertCODSnapshot(ctx context.Context, snapshot *CODSnapshot) error
	UpsertSellerSnapshots(ctx context.Context, snapshots []SellerSnapshot) error
	UpsertCommissionSnapshot(ctx context.Context, snapshot *CommissionSnapshot) error
	UpsertDailyReport(ctx context.Context, report *DailyReport) error

	// Read-backs used by the final report step
	GetAccountSnapshots(ctx context.Context, businessDate string) ([]AccountSnapshot, error)
	GetCODSnapshot(ctx context.Context, businessDate string) (*CODSnapshot, error)
	GetSellerSnapshots(ctx context.Context, businessDate string) ([]SellerSnapshot, error)
	GetCommissionSnapshot(ctx context.Context, businessDate string) (*CommissionSnapshot, error)
}

// ErrRunNotFound indicates no settlement run exists for the business date
type ErrRunNotFound struct {
	BusinessDate string
}

func (e ErrRunNotFound) Error() string {
	return "settlement run not found: " + e.BusinessDate
}

// Is implements the errors.Is interface for ErrRunNotFound
func (e ErrRunNotFound) Is(target error) bool {
	t, ok := target.(ErrRunNotFound)
	if !ok {
		return false
	}
	if t.BusinessDate == "" {
		return true
	}
	return e.BusinessDate == t.BusinessDate
}
