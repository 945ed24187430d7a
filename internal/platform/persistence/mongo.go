package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marketplace-ledger/settlement-engine/internal/config"
)

// Collection names shared by the repositories and the index bootstrap
const (
	LedgerCollection             = "ledger_entries"
	LeaseCollection              = "locks"
	CloseCollection              = "gl_daily_closes"
	RunCollection                = "settlement_runs"
	AccountSnapshotCollection    = "settlement_account_snapshots"
	CODSnapshotCollection        = "settlement_cod_snapshots"
	SellerSnapshotCollection     = "settlement_seller_snapshots"
	CommissionSnapshotCollection = "settlement_commission_snapshots"
	DailyReportCollection        = "settlement_daily_reports"
)

type MongoDB struct {
	logger   *slog.Logger
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoDB(ctx context.Context, logger *slog.Logger, cfg *config.MongoDBConfig) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	return &MongoDB{
		logger:   logger,
		client:   client,
		database: database,
	}, nil
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// EnsureIndexes creates the unique and query indexes the engine relies on.
// The unique lease key index is what turns a racing second insert into a
// duplicate-key error; the unique date indexes guarantee one close and one
// run per business date.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	specs := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{LeaseCollection, mongo.IndexModel{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique}},
		{CloseCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}}, Options: unique}},
		{RunCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}}, Options: unique}},
		{AccountSnapshotCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}, {Key: "account_key", Value: 1}}, Options: unique}},
		{SellerSnapshotCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}, {Key: "seller_id", Value: 1}}, Options: unique}},
		{CODSnapshotCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}}, Options: unique}},
		{CommissionSnapshotCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}}, Options: unique}},
		{DailyReportCollection, mongo.IndexModel{Keys: bson.D{{Key: "business_date", Value: 1}}, Options: unique}},
		{LedgerCollection, mongo.IndexModel{Keys: bson.D{{Key: "posted_at", Value: 1}, {Key: "account_key", Value: 1}}}},
	}

	for _, spec := range specs {
		if _, err := m.database.Collection(spec.collection).Indexes().CreateOne(ctx, spec.model); err != nil {
			return fmt.Errorf("failed to ensure index on %s: %w", spec.collection, err)
		}
	}

	m.logger.Info("Ensured MongoDB indexes", "collections", len(specs))
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed MongoDB connection")
	return nil
}
