package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marketplace-ledger/settlement-engine/internal/config"
	"github.com/marketplace-ledger/settlement-engine/internal/data/mongo"
	"github.com/marketplace-ledger/settlement-engine/internal/data/postgres"
	"github.com/marketplace-ledger/settlement-engine/internal/domain/outbox"
	"github.com/marketplace-ledger/settlement-engine/internal/logger"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/messaging/producers"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/metrics"
	"github.com/marketplace-ledger/settlement-engine/internal/platform/persistence"
	"github.com/marketplace-ledger/settlement-engine/internal/settlement_worker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	if err := mongoDB.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure MongoDB indexes", "error", err)
		os.Exit(1)
	}

	// The Postgres outbox is optional: settlement still runs without domain
	// events when the outbox database is down.
	var outboxRepo outbox.Repository
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Warn("Outbox database unavailable, domain events will be skipped", "error", err)
	} else {
		outboxRepo = postgres.NewOutboxRepository(log, postgresDB)
	}

	// Initialize repositories
	leaseRepo := mongo.NewLeaseRepository(log, mongoDB.Database())
	closeRepo := mongo.NewCloseRepository(log, mongoDB.Database())
	ledgerRepo := mongo.NewLedgerRepository(log, mongoDB.Database())
	runRepo := mongo.NewRunRepository(log, mongoDB.Database())
	snapshotRepo := mongo.NewSnapshotRepository(log, mongoDB.Database())

	// Initialize the settlement event producer
	eventProducer, err := producers.NewSettlementEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement event producer", "error", err)
		os.Exit(1)
	}

	// Initialize metrics
	m := metrics.New()
	metricsServer := m.Server(cfg.Metrics.Port)

	// Initialize the settlement processor and its change-stream watcher
	processor := settlement_worker.NewProcessor(
		log,
		leaseRepo,
		ledgerRepo,
		runRepo,
		snapshotRepo,
		outboxRepo,
		eventProducer,
		m,
		cfg.Close.BusinessTimezone,
		cfg.Settlement.LeaseTTL,
	)

	closeStream, err := mongo.NewCloseStream(appCtx, log, mongoDB.Database())
	if err != nil {
		log.Error("Failed to open close change stream", "error", err)
		os.Exit(1)
	}

	watcher, err := settlement_worker.NewWatcher(
		log,
		processor,
		closeRepo,
		closeStream,
		m,
		cfg.Settlement.WorkerPoolSize,
		cfg.Settlement.BacklogSize,
	)
	if err != nil {
		log.Error("Failed to initialize settlement watcher", "error", err)
		os.Exit(1)
	}

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start the watcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting settlement watcher",
			"pool_size", cfg.Settlement.WorkerPoolSize,
			"backlog_size", cfg.Settlement.BacklogSize,
		)
		if err := watcher.Run(appCtx); err != nil {
			errChan <- fmt.Errorf("settlement watcher error: %w", err)
		}
	}()

	// Start the metrics server in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting metrics server", "port", cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down metrics server", "error", err)
	}

	// Wait for in-flight settlements to finish
	watcher.Shutdown()

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close the change stream and the event producer
	if err := closeStream.Close(shutdownCtx); err != nil {
		log.Error("Error closing change stream", "error", err)
	}
	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing settlement event producer", "error", err)
	}

	// Shutdown postgres connection pool
	if postgresDB != nil {
		postgresDB.Close()
	}

	// Close MongoDB connection
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Settlement Worker shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Settlement Worker shutdown completed successfully")
}
