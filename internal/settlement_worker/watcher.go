package settlement_worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/metrics"
)

// RunProcessor settles one closed ledger day
type RunProcessor interface {
	ProcessRun(ctx context.Context, close *closing.Close) error
}

// CloseSource yields closed ledger records, blocking until one arrives
type CloseSource interface {
	Next(ctx context.Context) (*closing.Close, error)
}

// Watcher feeds closed records into the processor: first a backlog replay of
// recent closes missed while the worker was down, then the live change
// stream. Runs are dispatched through a worker pool so a slow settlement for
// one date never blocks another.
type Watcher struct {
	processor   RunProcessor
	closeRepo   closing.Repository
	source      CloseSource
	pool        *ants.Pool
	metrics     *metrics.Metrics // may be nil
	backlogSize int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewWatcher(
	logger *slog.Logger,
	processor RunProcessor,
	closeRepo closing.Repository,
	source CloseSource,
	m *metrics.Metrics,
	poolSize int,
	backlogSize int,
) (*Watcher, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement worker pool: %w", err)
	}

	return &Watcher{
		processor:   processor,
		closeRepo:   closeRepo,
		source:      source,
		pool:        pool,
		metrics:     m,
		backlogSize: backlogSize,
		logger:      logger,
	}, nil
}

// Run replays the backlog and then consumes the change stream until ctx is
// cancelled. Per-record settlement errors and undecodable events are logged
// and absorbed; only a terminated source ends the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.replayBacklog(ctx); err != nil {
		return err
	}

	w.logger.Info("Watching for ledger closes")
	for {
		close, err := w.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				w.logger.Info("Close watcher stopping")
				return nil
			}
			if errors.Is(err, closing.ErrMalformedEvent) {
				w.logger.Error("Skipping undecodable close event", "error", err)
				continue
			}
			return err
		}

		if w.metrics != nil {
			w.metrics.ChangeEventsReceived.Inc()
		}
		w.dispatch(ctx, close)
	}
}

// replayBacklog settles the most recently closed dates on startup. Already
// completed runs short-circuit inside the processor, so replaying a record
// twice costs one read.
func (w *Watcher) replayBacklog(ctx context.Context) error {
	if w.backlogSize <= 0 {
		return nil
	}

	closes, err := w.closeRepo.FindRecentClosed(ctx, w.backlogSize)
	if err != nil {
		return fmt.Errorf("failed to load settlement backlog: %w", err)
	}

	w.logger.Info("Replaying settlement backlog", "count", len(closes))
	for _, close := range closes {
		if ctx.Err() != nil {
			return nil
		}
		if w.metrics != nil {
			w.metrics.BacklogReplayed.Inc()
		}
		w.dispatch(ctx, close)
	}
	return nil
}

// dispatch submits one close to the pool, falling back to inline processing
// when the pool rejects the task.
func (w *Watcher) dispatch(ctx context.Context, close *closing.Close) {
	w.wg.Add(1)
	err := w.pool.Submit(func() {
		defer w.wg.Done()
		w.process(ctx, close)
	})
	if err != nil {
		w.logger.Warn("Worker pool rejected settlement task, running inline",
			"business_date", close.BusinessDate, "error", err)
		w.process(ctx, close)
		w.wg.Done()
	}
}

func (w *Watcher) process(ctx context.Context, close *closing.Close) {
	if err := w.processor.ProcessRun(ctx, close); err != nil {
		w.logger.Error("Settlement failed",
			"business_date", close.BusinessDate, "error", err)
	}
}

// Shutdown waits for in-flight settlements and releases the pool
func (w *Watcher) Shutdown() {
	w.logger.Info("Shutting down settlement watcher", "running_workers", w.pool.Running())
	w.wg.Wait()
	w.pool.Release()
}
