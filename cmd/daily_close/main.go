package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marketplace-ledger/settlement-engine/internal/aggregation"
	"github.com/marketplace-ledger/settlement-engine/internal/close_worker"
	"github.com/marketplace-ledger/settlement-engine/internal/config"
	"github.com/marketplace-ledger/settlement-engine/internal/data/mongo"
	"github.com/marketplace-ledger/settlement-engine/internal/data/postgres"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/closing"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/logger"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/messaging/producers"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
)

// The daily-close CLI is meant to run from cron or a scheduler shortly after
// the business day rolls over. It exits 0 when the day closed, was already
// closed, or another process holds the lease; any other outcome is non-zero.
func main() {
	var (
		dateArg       = flag.String("date", "", "Business date to close (YYYY-MM-DD, defaults to yesterday in the business timezone)")
		enqueueReport = flag.Bool("enqueue-report", false, "Enqueue a report-generation job after a successful close")
	)
	flag.Parse()

	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("daily_close")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Daily Close",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	businessDate, err := closing.ResolveBusinessDate(*dateArg, cfg.Close.BusinessTimezone, time.Now())
	if err != nil {
		log.Error("Failed to resolve business date", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoDB.Close(context.Background()); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}()

	if err := mongoDB.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure MongoDB indexes", "error", err)
		os.Exit(1)
	}

	// The Postgres outbox is optional for a close run: without it the close
	// still finalizes, only the ledger.closed domain event is skipped.
	var outboxRepo outbox.Repository
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Warn("Outbox database unavailable, domain events will be skipped", "error", err)
	} else {
		defer postgresDB.Close()
		outboxRepo = postgres.NewOutboxRepository(log, postgresDB)
	}

	var reportProducer producers.MessagePublisher
	if *enqueueReport {
		producer, err := producers.NewReportJobProducer(appCtx, log, &cfg.Kafka)
		if err != nil {
			log.Error("Failed to initialize report-job producer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Error("Error closing report-job producer", "error", err)
			}
		}()
		reportProducer = producer
	}

	leaseRepo := mongo.NewLeaseRepository(log, mongoDB.Database())
	closeRepo := mongo.NewCloseRepository(log, mongoDB.Database())
	ledgerRepo := mongo.NewLedgerRepository(log, mongoDB.Database())
	aggregator := aggregation.NewAggregator(log, ledgerRepo)

	worker := close_worker.NewWorker(
		log,
		leaseRepo,
		closeRepo,
		aggregator,
		outboxRepo,
		reportProducer,
		cfg.Close.BusinessTimezone,
		cfg.Close.LeaseTTL,
	)

	if err := worker.Run(appCtx, businessDate, *enqueueReport); err != nil {
		log.Error("Daily close failed", "business_date", businessDate, "error", err)
		os.Exit(1)
	}

	log.Info("Daily close finished", "business_date", businessDate)
}
