// Package config provides configuration structures and validation for the
// settlement engine. It handles environment-based configuration for the two
// worker processes, the document store, the domain-event outbox and the
// message broker used for downstream jobs.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents a
// major subsystem's configuration and is validated during process startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	MongoDB     MongoDBConfig
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	Close       CloseConfig
	Settlement  SettlementConfig
	Metrics     MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// PostgresConfig contains PostgreSQL configuration for the domain-event outbox
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// KafkaConfig contains Kafka configuration for downstream job/event topics
type KafkaConfig struct {
	Brokers              string
	ReportJobTopic       string // Topic for report-generation jobs
	SettlementEventTopic string // Topic for settlement lifecycle events
	NumPartitions        int
	ReplicationFactor    int
	MaxWait              time.Duration
}

// CloseConfig contains daily-close worker configuration
type CloseConfig struct {
	BusinessTimezone string // IANA zone the business day is anchored to
	LeaseTTL         time.Duration
}

// SettlementConfig contains settlement worker configuration
type SettlementConfig struct {
	LeaseTTL       time.Duration
	BacklogSize    int // Recent closed records replayed on startup
	WorkerPoolSize int
}

// MetricsConfig contains the Prometheus listener configuration
type MetricsConfig struct {
	Port int
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.ReportJobTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_REPORT_JOB_TOPIC is required")
	}
	if c.Kafka.SettlementEventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SETTLEMENT_EVENT_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_PRODUCER_MAX_WAIT must be greater than 0")
	}

	// Validate daily-close config
	if c.Close.BusinessTimezone == "" {
		validationErrors = append(validationErrors, "BUSINESS_TIMEZONE is required")
	}
	if c.Close.LeaseTTL <= 0 {
		validationErrors = append(validationErrors, "DAILY_CLOSE_LEASE_MS must be greater than 0")
	}

	// Validate settlement config
	if c.Settlement.LeaseTTL <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_LEASE_MS must be greater than 0")
	}
	if c.Settlement.BacklogSize <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_BACKLOG_SIZE must be greater than 0")
	}
	if c.Settlement.WorkerPoolSize <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate metrics config
	if c.Metrics.Port <= 0 {
		validationErrors = append(validationErrors, "METRICS_PORT must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
