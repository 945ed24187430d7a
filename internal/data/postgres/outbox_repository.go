package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL.
// The settlement engine only appends rows; the shared relay process owns the
// status/attempt columns from there on.
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// newOutboxRepositoryWithQuerier exists for tests that inject a mock querier
func newOutboxRepositoryWithQuerier(logger *slog.Logger, querier persistence.Querier) *OutboxRepository {
	return &OutboxRepository{
		querier: querier,
		logger:  logger,
	}
}

// Create stores a new domain event in pending status.
// The event will be picked up by the outbox relay for delivery.
func (r *OutboxRepository) Create(ctx context.Context, event *outbox.Event) error {
	query := `
		INSERT INTO domain_events (event_type, aggregate_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		event.EventType,
		event.AggregateID,
		event.Payload,
		event.Status,
		event.Attempts,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		r.logger.Error("Failed to create domain event",
			"event_type", event.EventType,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
		return fmt.Errorf("failed to create domain event: %w", err)
	}

	return nil
}
