package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// CloseStream tails the ledger-close collection for newly closed days. It
// matches inserts whose full document already carries status=closed, which is
// how the close worker finalizes via update; updates that flip status are
// matched through updateLookup.
type CloseStream struct {
	db     *mongo.Database
	logger *slog.Logger
	stream *mongo.ChangeStream
}

// NewCloseStream opens a change stream over the close collection. Requires a
// replica set or sharded deployment; standalone MongoDB rejects change
// streams, in which case the settlement worker should fall back to polling.
func NewCloseStream(ctx context.Context, logger *slog.Logger, db *mongo.Database) (*CloseStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"operationType":       bson.M{"$in": bson.A{"insert", "update", "replace"}},
			"fullDocument.status": closing.StatusClosed,
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := db.Collection(persistence.CloseCollection).Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open close change stream: %w", err)
	}

	logger.Info("Opened ledger-close change stream", "collection", persistence.CloseCollection)
	return &CloseStream{
		db:     db,
		logger: logger,
		stream: stream,
	}, nil
}

// Next blocks until the next closed record arrives or ctx is done
func (s *CloseStream) Next(ctx context.Context) (*closing.Close, error) {
	if !s.stream.Next(ctx) {
		if err := s.stream.Err(); err != nil {
			return nil, fmt.Errorf("close change stream terminated: %w", err)
		}
		return nil, context.Canceled
	}

	var event struct {
		FullDocument closing.Close `bson:"fullDocument"`
	}
	if err := s.stream.Decode(&event); err != nil {
		return nil, fmt.Errorf("%w: %v", closing.ErrMalformedEvent, err)
	}

	return &event.FullDocument, nil
}

func (s *CloseStream) Close(ctx context.Context) error {
	if err := s.stream.Close(ctx); err != nil {
		return fmt.Errorf("failed to close change stream: %w", err)
	}
	return nil
}
