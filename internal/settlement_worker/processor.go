// Package settlement_worker drives post-close settlement: for every closed
// ledger day it executes the five snapshot steps under a per-date lease and
// records progress in the settlement run document.
package settlement_worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-ledger/settlement-engine/internal/aggregation"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/lease"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/ledger"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/settlement"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/messaging/producers"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/metrics"
)

// LeaseKeyPrefix namespaces the settlement lease per business date
const LeaseKeyPrefix = "settlement_run_"

// CompletedEvent is the payload of the settlement.completed domain event
type CompletedEvent struct {
	BusinessDate string         `json:"business_date"`
	Window       closing.Window `json:"window"`
	RunID        string         `json:"run_id"`
	CompletedAt  time.Time      `json:"completed_at"`
}

// Processor is the settlement state machine. ProcessRun may be invoked any
// number of times for the same close, from any number of processes; the
// fast-path check, the lease and the idempotent snapshot writes together
// guarantee exactly-once effect.
type Processor struct {
	leaseRepo     lease.Repository
	ledgerRepo    ledger.Repository
	runRepo       settlement.RunRepository
	snapshotRepo  settlement.SnapshotRepository
	aggregator    *aggregation.Aggregator
	outboxRepo    outbox.Repository          // may be nil
	eventProducer producers.MessagePublisher // may be nil
	metrics       *metrics.Metrics           // may be nil
	timezone      string
	leaseTTL      time.Duration
	owner         string
	logger        *slog.Logger
}

func NewProcessor(
	logger *slog.Logger,
	leaseRepo lease.Repository,
	ledgerRepo ledger.Repository,
	runRepo settlement.RunRepository,
	snapshotRepo settlement.SnapshotRepository,
	outboxRepo outbox.Repository,
	eventProducer producers.MessagePublisher,
	m *metrics.Metrics,
	timezone string,
	leaseTTL time.Duration,
) *Processor {
	return &Processor{
		leaseRepo:     leaseRepo,
		ledgerRepo:    ledgerRepo,
		runRepo:       runRepo,
		snapshotRepo:  snapshotRepo,
		aggregator:    aggregation.NewAggregator(logger, ledgerRepo),
		outboxRepo:    outboxRepo,
		eventProducer: eventProducer,
		metrics:       m,
		timezone:      timezone,
		leaseTTL:      leaseTTL,
		owner:         lease.NewOwner(),
		logger:        logger,
	}
}

// ProcessRun settles one closed ledger day. It returns nil both on success
// and on the two normal non-operative outcomes: the run is already
// COMPLETED, or another worker holds the lease.
func (p *Processor) ProcessRun(ctx context.Context, close *closing.Close) error {
	if close == nil || close.BusinessDate == "" {
		return fmt.Errorf("close record is missing a business date")
	}
	businessDate := close.BusinessDate
	logger := p.logger.With("business_date", businessDate)

	window := close.Window
	if window.From.IsZero() || window.To.IsZero() {
		derived, err := closing.WindowForDate(businessDate, p.timezone)
		if err != nil {
			return err
		}
		window = derived
	}

	// Fast path: a completed run means the whole invocation is a no-op and
	// no lease is taken.
	run, err := p.runRepo.GetByDate(ctx, businessDate)
	if err != nil && !errors.Is(err, settlement.ErrRunNotFound{}) {
		return err
	}
	if run != nil && run.Status == settlement.StatusCompleted {
		logger.Debug("Settlement already completed, skipping")
		p.countSkipped()
		return nil
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	acquired, err := p.leaseRepo.Acquire(ctx, LeaseKeyPrefix+businessDate, p.owner, runID, p.leaseTTL)
	if err != nil {
		return err
	}
	if !acquired.OK {
		logger.Info("Settlement lease held by another process",
			"held_by", acquired.HeldBy,
			"expires_at", acquired.ExpiresAt,
		)
		p.countContention()
		return nil
	}
	defer func() {
		if err := p.leaseRepo.Release(ctx, LeaseKeyPrefix+businessDate, p.owner); err != nil {
			logger.Warn("Failed to release settlement lease", "error", err)
		}
	}()

	run, err = p.runRepo.UpsertRun(ctx, businessDate, close.ID, window, runID)
	if err != nil {
		return err
	}
	if run.Status == settlement.StatusCompleted {
		// Completed between the fast-path check and lease acquisition
		logger.Debug("Settlement completed while waiting for lease, skipping")
		p.countSkipped()
		return nil
	}

	if err := p.runRepo.MarkRunRunning(ctx, businessDate); err != nil {
		return err
	}
	p.countStarted()
	logger.Info("Settlement run started")

	// Steps run strictly in order; the step in flight is tracked so a
	// failure annotates the right one.
	currentStep := settlement.StepOrder[0]
	err = func() error {
		for _, step := range settlement.StepOrder {
			currentStep = step
			if err := p.executeStep(ctx, logger, step, businessDate, window, runID); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		logger.Error("Settlement run failed", "step", currentStep, "error", err)
		if markErr := p.runRepo.MarkRunFailed(ctx, businessDate, currentStep, err.Error()); markErr != nil {
			logger.Error("Failed to record settlement failure", "error", markErr)
		}
		p.countFailed()
		return err
	}

	if err := p.runRepo.MarkRunCompleted(ctx, businessDate); err != nil {
		return err
	}
	p.countCompleted()
	logger.Info("Settlement run completed")

	p.emitCompletion(ctx, logger, businessDate, window, runID)
	return nil
}

// executeStep wraps one step in the RUNNING/COMPLETED bookkeeping
func (p *Processor) executeStep(ctx context.Context, logger *slog.Logger, step settlement.StepName, businessDate string, window closing.Window, runID string) error {
	attempts, err := p.runRepo.MarkStepRunning(ctx, businessDate, step)
	if err != nil {
		return err
	}
	logger.Debug("Settlement step started", "step", step, "attempt", attempts)

	result, err := p.runStep(ctx, step, businessDate, window, runID)
	if err != nil {
		return fmt.Errorf("step %s: %w", step, err)
	}

	if err := p.runRepo.MarkStepCompleted(ctx, businessDate, step, result); err != nil {
		return err
	}
	logger.Debug("Settlement step completed", "step", step)
	return nil
}

func (p *Processor) runStep(ctx context.Context, step settlement.StepName, businessDate string, window closing.Window, runID string) (map[string]any, error) {
	switch step {
	case settlement.StepSnapshotAccounts:
		return p.snapshotAccounts(ctx, businessDate, window, runID)
	case settlement.StepSnapshotCOD:
		return p.snapshotCOD(ctx, businessDate, window, runID)
	case settlement.StepSnapshotSeller:
		return p.snapshotSeller(ctx, businessDate, window, runID)
	case settlement.StepSnapshotCommission:
		return p.snapshotCommission(ctx, businessDate, window, runID)
	case settlement.StepFinalReport:
		return p.finalReport(ctx, businessDate, window, runID)
	default:
		return nil, fmt.Errorf("unknown settlement step %q", step)
	}
}

// emitCompletion hands the settlement.completed notification to the outbox
// and the event topic. Both are best-effort: the run is already COMPLETED
// and re-running it would be a no-op, so delivery retries belong to the
// outbox relay, not to this engine.
func (p *Processor) emitCompletion(ctx context.Context, logger *slog.Logger, businessDate string, window closing.Window, runID string) {
	event := CompletedEvent{
		BusinessDate: businessDate,
		Window:       window,
		RunID:        runID,
		CompletedAt:  time.Now().UTC(),
	}

	if p.outboxRepo != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to marshal settlement.completed event", "error", err)
		} else {
			row := &outbox.Event{
				EventType:   outbox.EventTypeSettlementCompleted,
				AggregateID: businessDate,
				Payload:     payload,
				Status:      outbox.EventStatusPending,
				CreatedAt:   time.Now().UTC(),
			}
			if err := p.outboxRepo.Create(ctx, row); err != nil {
				logger.Error("Failed to append settlement.completed event", "error", err)
			}
		}
	}

	if p.eventProducer != nil {
		if err := p.eventProducer.Publish(ctx, businessDate, event); err != nil {
			logger.Error("Failed to publish settlement.completed event", "error", err)
		}
	}
}

func (p *Processor) countStarted() {
	if p.metrics != nil {
		p.metrics.RunsStarted.Inc()
	}
}

func (p *Processor) countCompleted() {
	if p.metrics != nil {
		p.metrics.RunsCompleted.Inc()
	}
}

func (p *Processor) countFailed() {
	if p.metrics != nil {
		p.metrics.RunsFailed.Inc()
	}
}

func (p *Processor) countSkipped() {
	if p.metrics != nil {
		p.metrics.RunsSkipped.Inc()
	}
}

func (p *Processor) countContention() {
	if p.metrics != nil {
		p.metrics.LockContention.Inc()
	}
}
