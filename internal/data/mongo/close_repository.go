package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// CloseRepository implements the closing.Repository interface for MongoDB
type CloseRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewCloseRepository creates a new MongoDB ledger-close repository
func NewCloseRepository(logger *slog.Logger, db *mongo.Database) closing.Repository {
	return &CloseRepository{
		db:     db,
		logger: logger,
	}
}

// GetByDate retrieves the close record for a business date.
// Returns ErrCloseNotFound if none exists.
func (r *CloseRepository) GetByDate(ctx context.Context, businessDate string) (*closing.Close, error) {
	collection := r.db.Collection(persistence.CloseCollection)

	var doc closing.Close
	err := collection.FindOne(ctx, bson.M{"business_date": businessDate}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, closing.ErrCloseNotFound{BusinessDate: businessDate}
		}
		r.logger.Error("Failed to get ledger close", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to get ledger close for %s: %w", businessDate, err)
	}

	return &doc, nil
}

// UpsertRunning creates or resets the close record to running under a fresh
// run id. Balances from a failed earlier attempt are cleared; the caller's
// idempotency gate keeps closed records from ever reaching this path.
func (r *CloseRepository) UpsertRunning(ctx context.Context, businessDate string, window closing.Window, runID string) (*closing.Close, error) {
	collection := r.db.Collection(persistence.CloseCollection)

	now := time.Now().UTC()
	filter := bson.M{"business_date": businessDate}
	update := bson.M{
		"$set": bson.M{
			"status":      closing.StatusRunning,
			"window":      window,
			"run_id":      runID,
			"totals":      closing.Totals{},
			"per_account": []closing.AccountBalance{},
			"audit":       closing.Audit{},
			"error":       "",
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"business_date": businessDate,
			"created_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc closing.Close
	if err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		r.logger.Error("Failed to upsert running ledger close",
			"business_date", businessDate, "run_id", runID, "error", err)
		return nil, fmt.Errorf("failed to upsert running ledger close for %s: %w", businessDate, err)
	}

	return &doc, nil
}

// FinalizeClosed transitions the record to closed only while this run still
// owns it: the filter requires (businessDate, runID, running), so a stale
// process cannot finalize over a newer run.
func (r *CloseRepository) FinalizeClosed(ctx context.Context, businessDate, runID string, totals closing.Totals, perAccount []closing.AccountBalance, audit closing.Audit) error {
	collection := r.db.Collection(persistence.CloseCollection)

	filter := bson.M{
		"business_date": businessDate,
		"run_id":        runID,
		"status":        closing.StatusRunning,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      closing.StatusClosed,
			"totals":      totals,
			"per_account": perAccount,
			"audit":       audit,
			"updated_at":  time.Now().UTC(),
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to finalize ledger close",
			"business_date", businessDate, "run_id", runID, "error", err)
		return fmt.Errorf("failed to finalize ledger close for %s: %w", businessDate, err)
	}
	if result.MatchedCount == 0 {
		return closing.ErrStaleRun{BusinessDate: businessDate, RunID: runID}
	}

	return nil
}

// MarkFailed records a failed close attempt with the captured cause. The
// failed status is recoverable: a later run with a fresh run id retries.
func (r *CloseRepository) MarkFailed(ctx context.Context, businessDate, runID, cause string) error {
	collection := r.db.Collection(persistence.CloseCollection)

	filter := bson.M{"business_date": businessDate, "run_id": runID}
	update := bson.M{
		"$set": bson.M{
			"status":     closing.StatusFailed,
			"error":      cause,
			"updated_at": time.Now().UTC(),
		},
	}

	if _, err := collection.UpdateOne(ctx, filter, update); err != nil {
		r.logger.Error("Failed to mark ledger close failed",
			"business_date", businessDate, "run_id", runID, "error", err)
		return fmt.Errorf("failed to mark ledger close failed for %s: %w", businessDate, err)
	}

	return nil
}

// FindRecentClosed returns the most recently closed records, newest first
func (r *CloseRepository) FindRecentClosed(ctx context.Context, limit int) ([]*closing.Close, error) {
	collection := r.db.Collection(persistence.CloseCollection)

	opts := options.Find().
		SetSort(bson.M{"updated_at": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, bson.M{"status": closing.StatusClosed}, opts)
	if err != nil {
		r.logger.Error("Failed to find recent closed records", "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to find recent closed records: %w", err)
	}
	defer cursor.Close(ctx)

	var closes []*closing.Close
	if err := cursor.All(ctx, &closes); err != nil {
		r.logger.Error("Failed to decode closed records", "error", err)
		return nil, fmt.Errorf("failed to decode closed records: %w", err)
	}

	return closes, nil
}
