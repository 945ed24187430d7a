package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for MongoDB.
// All methods are read-only aggregations; this engine never writes entries.
type LedgerRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewLedgerRepository creates a new MongoDB ledger repository
func NewLedgerRepository(logger *slog.Logger, db *mongo.Database) ledger.Repository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// SumWindowByAccount groups entries posted in [from, to) by account key,
// summing credits as inflow and debits as outflow. Results are sorted by
// account key so repeated runs over an unchanged ledger are byte-identical.
func (r *LedgerRepository) SumWindowByAccount(ctx context.Context, from, to time.Time, category string) ([]ledger.AccountFlow, error) {
	collection := r.db.Collection(persistence.LedgerCollection)

	match := bson.M{"posted_at": bson.M{"$gte": from, "$lt": to}}
	if category != "" {
		match["category"] = category
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id": "$account_key",
			"inflow": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$dc", string(ledger.SideCredit)}}, "$amount", 0,
			}}},
			"outflow": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$dc", string(ledger.SideDebit)}}, "$amount", 0,
			}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate ledger window",
			"from", from, "to", to, "category", category, "error", err)
		return nil, fmt.Errorf("failed to aggregate ledger window: %w", err)
	}
	defer cursor.Close(ctx)

	var flows []ledger.AccountFlow
	if err := cursor.All(ctx, &flows); err != nil {
		r.logger.Error("Failed to decode ledger window aggregation", "error", err)
		return nil, fmt.Errorf("failed to decode ledger window aggregation: %w", err)
	}

	return flows, nil
}

// SumOpeningByAccount accumulates credits minus debits per account over all
// entries posted strictly before the given instant.
func (r *LedgerRepository) SumOpeningByAccount(ctx context.Context, before time.Time) ([]ledger.AccountOpening, error) {
	collection := r.db.Collection(persistence.LedgerCollection)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"posted_at": bson.M{"$lt": before}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id": "$account_key",
			"opening": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$dc", string(ledger.SideCredit)}},
				"$amount",
				bson.M{"$multiply": bson.A{-1, "$amount"}},
			}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate opening balances", "before", before, "error", err)
		return nil, fmt.Errorf("failed to aggregate opening balances: %w", err)
	}
	defer cursor.Close(ctx)

	var openings []ledger.AccountOpening
	if err := cursor.All(ctx, &openings); err != nil {
		r.logger.Error("Failed to decode opening balance aggregation", "error", err)
		return nil, fmt.Errorf("failed to decode opening balance aggregation: %w", err)
	}

	return openings, nil
}

// AuditWindow counts entries in [from, to) and records the latest posting
func (r *LedgerRepository) AuditWindow(ctx context.Context, from, to time.Time) (*ledger.WindowAudit, error) {
	collection := r.db.Collection(persistence.LedgerCollection)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"posted_at": bson.M{"$gte": from, "$lt": to}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"ledger_count":  bson.M{"$sum": 1},
			"max_posted_at": bson.M{"$max": "$posted_at"},
		}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate window audit", "from", from, "to", to, "error", err)
		return nil, fmt.Errorf("failed to aggregate window audit: %w", err)
	}
	defer cursor.Close(ctx)

	var audits []ledger.WindowAudit
	if err := cursor.All(ctx, &audits); err != nil {
		r.logger.Error("Failed to decode window audit aggregation", "error", err)
		return nil, fmt.Errorf("failed to decode window audit aggregation: %w", err)
	}

	if len(audits) == 0 {
		// Empty window
		return &ledger.WindowAudit{}, nil
	}
	return &audits[0], nil
}
