// Package close_worker drives the once-per-day ledger close: it takes the
// per-date lease, runs the balance aggregation and finalizes the close
// record that triggers settlement.
package close_worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-ledger/settlement-engine/internal/aggregation"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/lease"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/messaging/producers"
)

// LeaseKeyPrefix namespaces the daily-close lease per business date
const LeaseKeyPrefix = "daily_close_"

// ClosedEvent is the payload of the ledger.closed domain event
type ClosedEvent struct {
	BusinessDate string         `json:"business_date"`
	Window       closing.Window `json:"window"`
	Totals       closing.Totals `json:"totals"`
	RunID        string         `json:"run_id"`
	ClosedAt     time.Time      `json:"closed_at"`
}

// ReportJob is the payload enqueued for the report-generation service
type ReportJob struct {
	BusinessDate string    `json:"business_date"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Worker runs one daily close end to end
type Worker struct {
	leaseRepo      lease.Repository
	closeRepo      closing.Repository
	aggregator     *aggregation.Aggregator
	outboxRepo     outbox.Repository          // may be nil
	reportProducer producers.MessagePublisher // may be nil
	timezone       string
	leaseTTL       time.Duration
	owner          string
	logger         *slog.Logger
}

func NewWorker(
	logger *slog.Logger,
	leaseRepo lease.Repository,
	closeRepo closing.Repository,
	aggregator *aggregation.Aggregator,
	outboxRepo outbox.Repository,
	reportProducer producers.MessagePublisher,
	timezone string,
	leaseTTL time.Duration,
) *Worker {
	return &Worker{
		leaseRepo:      leaseRepo,
		closeRepo:      closeRepo,
		aggregator:     aggregator,
		outboxRepo:     outboxRepo,
		reportProducer: reportProducer,
		timezone:       timezone,
		leaseTTL:       leaseTTL,
		owner:          lease.NewOwner(),
		logger:         logger,
	}
}

// Run closes the ledger for businessDate. It returns nil when the date is
// already closed or another process holds the lease; both are normal
// outcomes for a scheduled invocation.
func (w *Worker) Run(ctx context.Context, businessDate string, enqueueReport bool) error {
	logger := w.logger.With("business_date", businessDate)

	window, err := closing.WindowForDate(businessDate, w.timezone)
	if err != nil {
		return err
	}

	// Idempotency gate: a closed record makes the whole invocation a no-op,
	// without contending for the lease.
	existing, err := w.closeRepo.GetByDate(ctx, businessDate)
	if err != nil && !errors.Is(err, closing.ErrCloseNotFound{}) {
		return err
	}
	if existing != nil && existing.Status == closing.StatusClosed {
		logger.Info("Ledger already closed, nothing to do")
		return nil
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	acquired, err := w.leaseRepo.Acquire(ctx, LeaseKeyPrefix+businessDate, w.owner, runID, w.leaseTTL)
	if err != nil {
		return err
	}
	if !acquired.OK {
		logger.Info("Daily-close lease held by another process",
			"held_by", acquired.HeldBy,
			"expires_at", acquired.ExpiresAt,
		)
		return nil
	}
	defer func() {
		if err := w.leaseRepo.Release(ctx, LeaseKeyPrefix+businessDate, w.owner); err != nil {
			logger.Warn("Failed to release daily-close lease", "error", err)
		}
	}()

	if _, err := w.closeRepo.UpsertRunning(ctx, businessDate, window, runID); err != nil {
		return err
	}

	result, err := w.aggregator.ComputeDailyClose(ctx, window)
	if err != nil {
		logger.Error("Daily-close aggregation failed", "error", err)
		if markErr := w.closeRepo.MarkFailed(ctx, businessDate, runID, err.Error()); markErr != nil {
			logger.Error("Failed to record close failure", "error", markErr)
		}
		return err
	}

	err = w.closeRepo.FinalizeClosed(ctx, businessDate, runID, result.Totals, result.PerAccount, result.Audit)
	if err != nil {
		if errors.Is(err, closing.ErrStaleRun{}) {
			// A newer run owns the record now; marking failed would clobber it
			logger.Warn("Close superseded by a newer run, leaving record untouched")
			return err
		}
		logger.Error("Failed to finalize ledger close", "error", err)
		if markErr := w.closeRepo.MarkFailed(ctx, businessDate, runID, err.Error()); markErr != nil {
			logger.Error("Failed to record close failure", "error", markErr)
		}
		return err
	}

	logger.Info("Ledger closed",
		"accounts", len(result.PerAccount),
		"net", result.Totals.Net,
		"ledger_count", result.Audit.LedgerCount,
	)

	w.emitClosedEvent(ctx, logger, businessDate, window, result, runID)

	if enqueueReport {
		w.enqueueReportJob(ctx, logger, businessDate)
	}

	return nil
}

// emitClosedEvent appends the ledger.closed domain event. Best-effort: the
// close itself is already final, so a failed append only logs.
func (w *Worker) emitClosedEvent(ctx context.Context, logger *slog.Logger, businessDate string, window closing.Window, result *aggregation.Result, runID string) {
	if w.outboxRepo == nil {
		return
	}

	payload, err := json.Marshal(ClosedEvent{
		BusinessDate: businessDate,
		Window:       window,
		Totals:       result.Totals,
		RunID:        runID,
		ClosedAt:     time.Now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to marshal ledger.closed event", "error", err)
		return
	}

	event := &outbox.Event{
		EventType:   outbox.EventTypeLedgerClosed,
		AggregateID: businessDate,
		Payload:     payload,
		Status:      outbox.EventStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.outboxRepo.Create(ctx, event); err != nil {
		logger.Error("Failed to append ledger.closed event", "error", err)
	}
}

// enqueueReportJob publishes a report-generation job. Best-effort for the
// same reason as the domain event.
func (w *Worker) enqueueReportJob(ctx context.Context, logger *slog.Logger, businessDate string) {
	if w.reportProducer == nil {
		logger.Warn("Report enqueue requested but no producer configured")
		return
	}

	job := ReportJob{BusinessDate: businessDate, RequestedAt: time.Now().UTC()}
	if err := w.reportProducer.Publish(ctx, businessDate, job); err != nil {
		logger.Error("Failed to enqueue report job", "error", err)
		return
	}
	logger.Info("Enqueued report-generation job")
}
