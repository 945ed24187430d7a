package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
)

func TestStepStatusFilter(t *testing.T) {
	// A step may only fail out of RUNNING; a failure raised before the step
	// started must not match its document.
	filter := stepStatusFilter("2025-03-14", settlement.StepSnapshotCOD, settlement.StatusFailed)
	assert.Equal(t, "2025-03-14", filter["business_date"])
	assert.Equal(t, bson.M{"$in": []string{"RUNNING"}}, filter["steps.snapshot_cod.status"])

	// Steps restart from PENDING, FAILED and, on a re-driven run, COMPLETED
	filter = stepStatusFilter("2025-03-14", settlement.StepFinalReport, settlement.StatusRunning)
	assert.Equal(t, bson.M{"$in": []string{"PENDING", "COMPLETED", "FAILED"}}, filter["steps.final_report.status"])

	filter = stepStatusFilter("2025-03-14", settlement.StepSnapshotAccounts, settlement.StatusCompleted)
	assert.Equal(t, bson.M{"$in": []string{"RUNNING"}}, filter["steps.snapshot_accounts.status"])
}
