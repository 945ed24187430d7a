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

	"github.com/marketplace-ledger/settlement-engine/internal/domain/lease"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// LeaseRepository implements the lease.Repository interface for MongoDB.
// Mutual exclusion rests on two store guarantees: FindOneAndUpdate is atomic,
// and the unique index on "key" turns a racing second insert into a
// duplicate-key error.
type LeaseRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewLeaseRepository creates a new MongoDB lease repository
func NewLeaseRepository(logger *slog.Logger, db *mongo.Database) lease.Repository {
	return &LeaseRepository{
		db:     db,
		logger: logger,
	}
}

// takeoverFilter matches the lease document for key only when the caller may
// claim it: the caller already owns it (renewal), it expired, its expiry is
// missing or not a real timestamp (corrupted/legacy), or it was explicitly
// released.
func takeoverFilter(key, owner string, now time.Time) bson.M {
	return bson.M{
		"key": key,
		"$or": []bson.M{
			{"owner": owner},
			{"expires_at": bson.M{"$lte": now}},
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": bson.M{"$not": bson.M{"$type": "date"}}},
			{"released_at": bson.M{"$ne": nil}},
		},
	}
}

// Acquire attempts a takeover first, then falls back to a plain insert. The
// takeover update never upserts, so it cannot race another process into a
// duplicate-key error; losing the insert race is the LOCK_HELD outcome.
func (r *LeaseRepository) Acquire(ctx context.Context, key, owner, runID string, ttl time.Duration) (*lease.AcquireResult, error) {
	collection := r.db.Collection(persistence.LeaseCollection)

	ttl = lease.ClampTTL(ttl)
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	update := bson.M{
		"$set": bson.M{
			"owner":       owner,
			"run_id":      runID,
			"acquired_at": now,
			"expires_at":  expiresAt,
			"released_at": nil,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc lease.Lease
	err := collection.FindOneAndUpdate(ctx, takeoverFilter(key, owner, now), update, opts).Decode(&doc)
	if err == nil {
		return &lease.AcquireResult{OK: true, Mode: lease.ModeTakeover, Lease: &doc}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		r.logger.Error("Failed lease takeover attempt", "key", key, "owner", owner, "error", err)
		return nil, fmt.Errorf("failed lease takeover attempt for %s: %w", key, err)
	}

	// No claimable document: either the key is new, or a live owner holds it.
	// Try to insert; the unique index arbitrates the race.
	doc = lease.Lease{
		Key:        key,
		Owner:      owner,
		RunID:      runID,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
		ReleasedAt: nil,
		UpdatedAt:  now,
	}
	_, err = collection.InsertOne(ctx, doc)
	if err == nil {
		return &lease.AcquireResult{OK: true, Mode: lease.ModeInsert, Lease: &doc}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		r.logger.Error("Failed to insert lease", "key", key, "owner", owner, "error", err)
		return nil, fmt.Errorf("failed to insert lease for %s: %w", key, err)
	}

	// Another process won. Read the holder back for observability; a failed
	// read-back still reports contention, just without holder metadata.
	result := &lease.AcquireResult{OK: false, Reason: lease.ReasonLockHeld}
	var holder lease.Lease
	if err := collection.FindOne(ctx, bson.M{"key": key}).Decode(&holder); err != nil {
		r.logger.Warn("Lease held but holder could not be read back", "key", key, "error", err)
		return result, nil
	}
	result.HeldBy = holder.Owner
	result.ExpiresAt = holder.ExpiresAt
	return result, nil
}

// Release unconditionally expires the (key, owner) lease. Callers treat a
// failure as log-only; an expired-but-unreleased lease is still reclaimable
// through the takeover path.
func (r *LeaseRepository) Release(ctx context.Context, key, owner string) error {
	collection := r.db.Collection(persistence.LeaseCollection)

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"released_at": now,
			"expires_at":  now,
			"updated_at":  now,
		},
	}

	_, err := collection.UpdateOne(ctx, bson.M{"key": key, "owner": owner}, update)
	if err != nil {
		r.logger.Error("Failed to release lease", "key", key, "owner", owner, "error", err)
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}

	return nil
}
