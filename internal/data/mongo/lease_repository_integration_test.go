package mongo

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/lease"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// Exercises mutual exclusion and takeover against a real deployment:
// the unique key index turns the second acquire into the LOCK_HELD result,
// renewal by the holder succeeds, and a released lease is reclaimable.
// Skipped unless MONGO_TEST_URI points at a running instance.
func TestLeaseRepository_MutualExclusion(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database("settlement_engine_test")
	collection := db.Collection(persistence.LeaseCollection)
	require.NoError(t, collection.Drop(ctx))

	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	require.NoError(t, err)

	repo := NewLeaseRepository(slog.Default(), db)
	key := "daily_close_2025-03-14"

	first, err := repo.Acquire(ctx, key, "owner-a", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first.OK)
	assert.Equal(t, lease.ModeInsert, first.Mode)

	held, err := repo.Acquire(ctx, key, "owner-b", "run-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, held.OK, "a live lease must not be claimable by another owner")
	assert.Equal(t, lease.ReasonLockHeld, held.Reason)
	assert.Equal(t, "owner-a", held.HeldBy)

	renewed, err := repo.Acquire(ctx, key, "owner-a", "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed.OK, "the holder renews through the takeover path")
	assert.Equal(t, lease.ModeTakeover, renewed.Mode)

	require.NoError(t, repo.Release(ctx, key, "owner-a"))

	takeover, err := repo.Acquire(ctx, key, "owner-b", "run-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, takeover.OK, "a released lease is reclaimable")
	assert.Equal(t, lease.ModeTakeover, takeover.Mode)
}
