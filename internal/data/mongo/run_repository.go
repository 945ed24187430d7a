package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// RunRepository implements the settlement.RunRepository interface for MongoDB.
// Status transitions are enforced by embedding the allowed source statuses in
// each conditional-update filter: an illegal transition matches no document
// and surfaces as ErrIllegalTransition instead of silently writing.
type RunRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewRunRepository creates a new MongoDB settlement-run repository
func NewRunRepository(logger *slog.Logger, db *mongo.Database) settlement.RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

func statusIn(statuses []settlement.Status) bson.M {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return bson.M{"$in": values}
}

// stepStatusFilter matches the run only when the named step may legally move
// to the target status.
func stepStatusFilter(businessDate string, step settlement.StepName, to settlement.Status) bson.M {
	return bson.M{
		"business_date":                     businessDate,
		"steps." + string(step) + ".status": statusIn(settlement.StepSources(to)),
	}
}

// GetByDate retrieves the run for a business date.
// Returns ErrRunNotFound if none exists.
func (r *RunRepository) GetByDate(ctx context.Context, businessDate string) (*settlement.Run, error) {
	collection := r.db.Collection(persistence.RunCollection)

	var run settlement.Run
	err := collection.FindOne(ctx, bson.M{"business_date": businessDate}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, settlement.ErrRunNotFound{BusinessDate: businessDate}
		}
		r.logger.Error("Failed to get settlement run", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to get settlement run for %s: %w", businessDate, err)
	}

	return &run, nil
}

// UpsertRun creates the run as PENDING on first sight; for an existing run it
// only refreshes close id, window and run id, leaving status and step history
// to the transition-checked writes.
func (r *RunRepository) UpsertRun(ctx context.Context, businessDate string, closeID primitive.ObjectID, window closing.Window, runID string) (*settlement.Run, error) {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()

	initialSteps := bson.M{}
	for _, step := range settlement.StepOrder {
		initialSteps[string(step)] = settlement.StepState{Status: settlement.StatusPending}
	}

	filter := bson.M{"business_date": businessDate}
	update := bson.M{
		"$set": bson.M{
			"close_id":   closeID,
			"window":     window,
			"run_id":     runID,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"business_date": businessDate,
			"status":        settlement.StatusPending,
			"steps":         initialSteps,
			"created_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var run settlement.Run
	if err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&run); err != nil {
		r.logger.Error("Failed to upsert settlement run",
			"business_date", businessDate, "run_id", runID, "error", err)
		return nil, fmt.Errorf("failed to upsert settlement run for %s: %w", businessDate, err)
	}

	return &run, nil
}

// MarkRunRunning moves the run to RUNNING from any legal source status
func (r *RunRepository) MarkRunRunning(ctx context.Context, businessDate string) error {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()
	filter := bson.M{
		"business_date": businessDate,
		"status":        statusIn(settlement.RunSources(settlement.StatusRunning)),
	}
	update := bson.M{
		"$set": bson.M{
			"status":      settlement.StatusRunning,
			"error":       "",
			"started_at":  now,
			"finished_at": nil,
			"updated_at":  now,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark settlement run running", "business_date", businessDate, "error", err)
		return fmt.Errorf("failed to mark settlement run running for %s: %w", businessDate, err)
	}
	if result.MatchedCount == 0 {
		return r.runTransitionError(ctx, businessDate, settlement.StatusRunning)
	}

	return nil
}

// MarkStepRunning moves a step to RUNNING, increments its attempts and clears
// any previous outcome. Legal from PENDING, FAILED and (on a retried run)
// COMPLETED.
func (r *RunRepository) MarkStepRunning(ctx context.Context, businessDate string, step settlement.StepName) (int, error) {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()
	field := "steps." + string(step)
	filter := stepStatusFilter(businessDate, step, settlement.StatusRunning)
	update := bson.M{
		"$set": bson.M{
			field + ".status":      settlement.StatusRunning,
			field + ".started_at":  now,
			field + ".finished_at": nil,
			field + ".result":      nil,
			field + ".error":       "",
			"updated_at":           now,
		},
		"$inc": bson.M{field + ".attempts": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var run settlement.Run
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, r.stepTransitionError(ctx, businessDate, step, settlement.StatusRunning)
		}
		r.logger.Error("Failed to mark settlement step running",
			"business_date", businessDate, "step", step, "error", err)
		return 0, fmt.Errorf("failed to mark step %s running for %s: %w", step, businessDate, err)
	}

	return run.Step(step).Attempts, nil
}

// MarkStepCompleted moves a RUNNING step to COMPLETED with its result summary
func (r *RunRepository) MarkStepCompleted(ctx context.Context, businessDate string, step settlement.StepName, stepResult map[string]any) error {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()
	field := "steps." + string(step)
	filter := stepStatusFilter(businessDate, step, settlement.StatusCompleted)
	update := bson.M{
		"$set": bson.M{
			field + ".status":      settlement.StatusCompleted,
			field + ".finished_at": now,
			field + ".result":      stepResult,
			"updated_at":           now,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark settlement step completed",
			"business_date", businessDate, "step", step, "error", err)
		return fmt.Errorf("failed to mark step %s completed for %s: %w", step, businessDate, err)
	}
	if result.MatchedCount == 0 {
		return r.stepTransitionError(ctx, businessDate, step, settlement.StatusCompleted)
	}

	return nil
}

// MarkRunCompleted moves a RUNNING run to its terminal COMPLETED state
func (r *RunRepository) MarkRunCompleted(ctx context.Context, businessDate string) error {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()
	filter := bson.M{
		"business_date": businessDate,
		"status":        statusIn(settlement.RunSources(settlement.StatusCompleted)),
	}
	update := bson.M{
		"$set": bson.M{
			"status":      settlement.StatusCompleted,
			"finished_at": now,
			"updated_at":  now,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark settlement run completed", "business_date", businessDate, "error", err)
		return fmt.Errorf("failed to mark settlement run completed for %s: %w", businessDate, err)
	}
	if result.MatchedCount == 0 {
		return r.runTransitionError(ctx, businessDate, settlement.StatusCompleted)
	}

	return nil
}

// MarkRunFailed moves a RUNNING run to FAILED and annotates the step that was
// actually in flight with the captured cause. The step annotation carries its
// own transition gate: a failure raised before the step entered RUNNING marks
// only the run.
func (r *RunRepository) MarkRunFailed(ctx context.Context, businessDate string, step settlement.StepName, cause string) error {
	collection := r.db.Collection(persistence.RunCollection)

	now := time.Now().UTC()
	filter := bson.M{
		"business_date": businessDate,
		"status":        statusIn(settlement.RunSources(settlement.StatusFailed)),
	}
	update := bson.M{
		"$set": bson.M{
			"status":      settlement.StatusFailed,
			"error":       cause,
			"finished_at": now,
			"updated_at":  now,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark settlement run failed",
			"business_date", businessDate, "step", step, "error", err)
		return fmt.Errorf("failed to mark settlement run failed for %s: %w", businessDate, err)
	}
	if result.MatchedCount == 0 {
		return r.runTransitionError(ctx, businessDate, settlement.StatusFailed)
	}

	field := "steps." + string(step)
	stepUpdate := bson.M{
		"$set": bson.M{
			field + ".status":      settlement.StatusFailed,
			field + ".error":       cause,
			field + ".finished_at": now,
			"updated_at":           now,
		},
	}
	stepResult, err := collection.UpdateOne(ctx, stepStatusFilter(businessDate, step, settlement.StatusFailed), stepUpdate)
	if err != nil {
		r.logger.Error("Failed to annotate failed settlement step",
			"business_date", businessDate, "step", step, "error", err)
		return fmt.Errorf("failed to annotate failed step %s for %s: %w", step, businessDate, err)
	}
	if stepResult.MatchedCount == 0 {
		r.logger.Debug("Step was not in flight at failure, run-level error only",
			"business_date", businessDate, "step", step)
	}

	return nil
}

// runTransitionError reads the document back to build a precise error:
// missing document vs illegal transition from the run's current status.
func (r *RunRepository) runTransitionError(ctx context.Context, businessDate string, to settlement.Status) error {
	run, err := r.GetByDate(ctx, businessDate)
	if err != nil {
		return err
	}
	return settlement.ErrIllegalTransition{Entity: "run", From: run.Status, To: to}
}

func (r *RunRepository) stepTransitionError(ctx context.Context, businessDate string, step settlement.StepName, to settlement.Status) error {
	run, err := r.GetByDate(ctx, businessDate)
	if err != nil {
		return err
	}
	return settlement.ErrIllegalTransition{Entity: "step " + string(step), From: run.Step(step).Status, To: to}
}
