// Package settlement defines the per-business-date settlement run document,
// its five snapshot steps, and the snapshot projections those steps derive
// from the ledger.
package settlement

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
)

// StepName identifies one of the five settlement steps
type StepName string

const (
	StepSnapshotAccounts   StepName = "snapshot_accounts"
	StepSnapshotCOD        StepName = "snapshot_cod"
	StepSnapshotSeller     StepName = "snapshot_seller"
	StepSnapshotCommission StepName = "snapshot_commission"
	StepFinalReport        StepName = "final_report"
)

// StepOrder is the strict execution order within one run
var StepOrder = []StepName{
	StepSnapshotAccounts,
	StepSnapshotCOD,
	StepSnapshotSeller,
	StepSnapshotCommission,
	StepFinalReport,
}

// StepState tracks one step's status, attempt count and outcome inside the
// run document. Attempts accumulate across retried runs.
type StepState struct {
	Status     Status         `json:"status" bson:"status"`
	Attempts   int            `json:"attempts" bson:"attempts"`
	StartedAt  *time.Time     `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	Result     map[string]any `json:"result,omitempty" bson:"result,omitempty"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"`
}

// Run is the settlement run document, one per business date. It is created
// on the first settlement attempt and mutated step by step; retries are
// re-entrant.
type Run struct {
	ID           primitive.ObjectID     `json:"id,omitempty" bson:"_id,omitempty"`
	BusinessDate string                 `json:"business_date" bson:"business_date"`
	Status       Status                 `json:"status" bson:"status"`
	Window       closing.Window         `json:"window" bson:"window"`
	CloseID      primitive.ObjectID     `json:"close_id" bson:"close_id"`
	RunID        string                 `json:"run_id" bson:"run_id"`
	Steps        map[StepName]StepState `json:"steps" bson:"steps"`
	Error        string                 `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at" bson:"updated_at"`
}

// Step returns the state recorded for a step, zero-valued when absent
func (r *Run) Step(name StepName) StepState {
	if r.Steps == nil {
		return StepState{Status: StatusPending}
	}
	st, ok := r.Steps[name]
	if !ok {
		return StepState{Status: StatusPending}
	}
	return st
}
