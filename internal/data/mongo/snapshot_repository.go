package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// SnapshotRepository implements the settlement.SnapshotRepository interface
// for MongoDB. Every write replaces the whole document for its key, so a
// retried step reproduces identical output instead of double-counting.
type SnapshotRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewSnapshotRepository creates a new MongoDB snapshot repository
func NewSnapshotRepository(logger *slog.Logger, db *mongo.Database) settlement.SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertAccountSnapshots replaces the per-account balance documents for the
// date in one unordered bulk write.
func (r *SnapshotRepository) UpsertAccountSnapshots(ctx context.Context, snapshots []settlement.AccountSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	collection := r.db.Collection(persistence.AccountSnapshotCollection)

	models := make([]mongo.WriteModel, 0, len(snapshots))
	for _, snap := range snapshots {
		filter := bson.M{"business_date": snap.BusinessDate, "account_key": snap.AccountKey}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(snap).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := collection.BulkWrite(ctx, models, opts); err != nil {
		r.logger.Error("Failed to upsert account snapshots",
			"business_date", snapshots[0].BusinessDate, "count", len(snapshots), "error", err)
		return fmt.Errorf("failed to upsert account snapshots: %w", err)
	}

	return nil
}

// UpsertCODSnapshot replaces the single COD totals document for the date
func (r *SnapshotRepository) UpsertCODSnapshot(ctx context.Context, snapshot *settlement.CODSnapshot) error {
	return r.replaceByDate(ctx, persistence.CODSnapshotCollection, snapshot.BusinessDate, snapshot)
}

// UpsertSellerSnapshots replaces the per-seller payout documents for the
// date in one unordered bulk write.
func (r *SnapshotRepository) UpsertSellerSnapshots(ctx context.Context, snapshots []settlement.SellerSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	collection := r.db.Collection(persistence.SellerSnapshotCollection)

	models := make([]mongo.WriteModel, 0, len(snapshots))
	for _, snap := range snapshots {
		filter := bson.M{"business_date": snap.BusinessDate, "seller_id": snap.SellerID}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(snap).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := collection.BulkWrite(ctx, models, opts); err != nil {
		r.logger.Error("Failed to upsert seller snapshots",
			"business_date", snapshots[0].BusinessDate, "count", len(snapshots), "error", err)
		return fmt.Errorf("failed to upsert seller snapshots: %w", err)
	}

	return nil
}

// UpsertCommissionSnapshot replaces the commission totals document for the date
func (r *SnapshotRepository) UpsertCommissionSnapshot(ctx context.Context, snapshot *settlement.CommissionSnapshot) error {
	return r.replaceByDate(ctx, persistence.CommissionSnapshotCollection, snapshot.BusinessDate, snapshot)
}

// UpsertDailyReport replaces the consolidated report document for the date
func (r *SnapshotRepository) UpsertDailyReport(ctx context.Context, report *settlement.DailyReport) error {
	return r.replaceByDate(ctx, persistence.DailyReportCollection, report.BusinessDate, report)
}

func (r *SnapshotRepository) replaceByDate(ctx context.Context, collectionName, businessDate string, doc any) error {
	collection := r.db.Collection(collectionName)

	filter := bson.M{"business_date": businessDate}
	opts := options.Replace().SetUpsert(true)
	if _, err := collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		r.logger.Error("Failed to upsert snapshot",
			"collection", collectionName, "business_date", businessDate, "error", err)
		return fmt.Errorf("failed to upsert %s for %s: %w", collectionName, businessDate, err)
	}

	return nil
}

// GetAccountSnapshots returns the per-account balances stored for the date,
// sorted by account key.
func (r *SnapshotRepository) GetAccountSnapshots(ctx context.Context, businessDate string) ([]settlement.AccountSnapshot, error) {
	collection := r.db.Collection(persistence.AccountSnapshotCollection)

	opts := options.Find().SetSort(bson.M{"account_key": 1})
	cursor, err := collection.Find(ctx, bson.M{"business_date": businessDate}, opts)
	if err != nil {
		r.logger.Error("Failed to get account snapshots", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to get account snapshots for %s: %w", businessDate, err)
	}
	defer cursor.Close(ctx)

	var snapshots []settlement.AccountSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		r.logger.Error("Failed to decode account snapshots", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to decode account snapshots for %s: %w", businessDate, err)
	}

	return snapshots, nil
}

// GetCODSnapshot returns the COD totals stored for the date, nil when the
// step has not produced one yet.
func (r *SnapshotRepository) GetCODSnapshot(ctx context.Context, businessDate string) (*settlement.CODSnapshot, error) {
	var snapshot settlement.CODSnapshot
	found, err := r.findByDate(ctx, persistence.CODSnapshotCollection, businessDate, &snapshot)
	if err != nil || !found {
		return nil, err
	}
	return &snapshot, nil
}

// GetSellerSnapshots returns the per-seller payouts stored for the date,
// sorted by seller id.
func (r *SnapshotRepository) GetSellerSnapshots(ctx context.Context, businessDate string) ([]settlement.SellerSnapshot, error) {
	collection := r.db.Collection(persistence.SellerSnapshotCollection)

	opts := options.Find().SetSort(bson.M{"seller_id": 1})
	cursor, err := collection.Find(ctx, bson.M{"business_date": businessDate}, opts)
	if err != nil {
		r.logger.Error("Failed to get seller snapshots", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to get seller snapshots for %s: %w", businessDate, err)
	}
	defer cursor.Close(ctx)

	var snapshots []settlement.SellerSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		r.logger.Error("Failed to decode seller snapshots", "business_date", businessDate, "error", err)
		return nil, fmt.Errorf("failed to decode seller snapshots for %s: %w", businessDate, err)
	}

	return snapshots, nil
}

// GetCommissionSnapshot returns the commission totals stored for the date,
// nil when the step has not produced one yet.
func (r *SnapshotRepository) GetCommissionSnapshot(ctx context.Context, businessDate string) (*settlement.CommissionSnapshot, error) {
	var snapshot settlement.CommissionSnapshot
	found, err := r.findByDate(ctx, persistence.CommissionSnapshotCollection, businessDate, &snapshot)
	if err != nil || !found {
		return nil, err
	}
	return &snapshot, nil
}

func (r *SnapshotRepository) findByDate(ctx context.Context, collectionName, businessDate string, out any) (bool, error) {
	collection := r.db.Collection(collectionName)

	err := collection.FindOne(ctx, bson.M{"business_date": businessDate}).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		r.logger.Error("Failed to get snapshot",
			"collection", collectionName, "business_date", businessDate, "error", err)
		return false, fmt.Errorf("failed to get %s for %s: %w", collectionName, businessDate, err)
	}

	return true, nil
}
