package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_HappyPath(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	tempConfigsSubDir := filepath.Join(tempDir, "configs")
	err = os.Mkdir(tempConfigsSubDir, 0755)
	require.NoError(t, err)

	testAppName := "TestApp"
	testLogLevel := "debug"
	testTimezone := "Asia/Dubai"
	testBacklog := 50

	envContent := fmt.Sprintf(
		"APP_NAME=%s\nLOG_LEVEL=%s\nBUSINESS_TIMEZONE=%s\nSETTLEMENT_BACKLOG_SIZE=%d\n",
		testAppName, testLogLevel, testTimezone, testBacklog,
	)
	envFilePath := filepath.Join(tempConfigsSubDir, "test_happy.env")
	err = os.WriteFile(envFilePath, []byte(envContent), 0644)
	require.NoError(t, err)

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	defer func() {
		_ = os.Chdir(originalWD)
	}()

	err = os.Chdir(tempDir)
	require.NoError(t, err)

	cfg, err := LoadConfig("test_happy")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, testAppName, cfg.Application.Name)
	assert.Equal(t, testLogLevel, cfg.Logging.Level)
	assert.Equal(t, testTimezone, cfg.Close.BusinessTimezone)
	assert.Equal(t, testBacklog, cfg.Settlement.BacklogSize)

	assert.Equal(t, "development", cfg.Application.Env)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, "report_jobs", cfg.Kafka.ReportJobTopic)
	assert.Equal(t, 10*time.Minute, cfg.Close.LeaseTTL)
	assert.Equal(t, 10*time.Minute, cfg.Settlement.LeaseTTL)
	assert.Equal(t, 4, cfg.Settlement.WorkerPoolSize)

	cfgWithName, err := LoadConfigWithName("configs/test_happy") // Viper will look for configs/test_happy.env
	require.NoError(t, err)
	require.NotNil(t, cfgWithName)
	assert.Equal(t, testAppName, cfgWithName.Application.Name)

	// Test LoadConfigWithNameAndType
	cfgWithNameAndType, err := LoadConfigWithNameAndType("configs/test_happy", "env")
	require.NoError(t, err)
	require.NotNil(t, cfgWithNameAndType)
	assert.Equal(t, testAppName, cfgWithNameAndType.Application.Name)
}

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	return &Config{
		Application: ApplicationConfig{Env: v.GetString("APP_ENV"), Name: v.GetString("APP_NAME")},
		Logging:     LoggingConfig{Level: v.GetString("LOG_LEVEL")},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGO_URI"),
			Database:        v.GetString("MONGO_DATABASE"),
			Timeout:         v.GetDuration("MONGO_TIMEOUT"),
			MaxPoolSize:     uint64(v.GetInt("MONGO_MAX_POOL_SIZE")),
			MinPoolSize:     uint64(v.GetInt("MONGO_MIN_POOL_SIZE")),
			MaxConnIdleTime: v.GetDuration("MONGO_MAX_CONN_IDLE_TIME"),
		},
		Postgres: PostgresConfig{
			URL:             v.GetString("POSTGRES_URL"),
			MaxConns:        int32(v.GetInt("POSTGRES_MAX_CONNS")),
			MinConns:        int32(v.GetInt("POSTGRES_MIN_CONNS")),
			ConnMaxLifetime: v.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("POSTGRES_MAX_CONN_IDLE_TIME"),
			MigrationsPath:  v.GetString("POSTGRES_MIGRATIONS_PATH"),
		},
		Kafka: KafkaConfig{
			Brokers:              v.GetString("KAFKA_BROKERS"),
			ReportJobTopic:       v.GetString("KAFKA_REPORT_JOB_TOPIC"),
			SettlementEventTopic: v.GetString("KAFKA_SETTLEMENT_EVENT_TOPIC"),
			NumPartitions:        v.GetInt("KAFKA_NUM_PARTITIONS"),
			ReplicationFactor:    v.GetInt("KAFKA_REPLICATION_FACTOR"),
			MaxWait:              v.GetDuration("KAFKA_PRODUCER_MAX_WAIT"),
		},
		Close: CloseConfig{
			BusinessTimezone: v.GetString("BUSINESS_TIMEZONE"),
			LeaseTTL:         time.Duration(v.GetInt64("DAILY_CLOSE_LEASE_MS")) * time.Millisecond,
		},
		Settlement: SettlementConfig{
			LeaseTTL:       time.Duration(v.GetInt64("SETTLEMENT_LEASE_MS")) * time.Millisecond,
			BacklogSize:    v.GetInt("SETTLEMENT_BACKLOG_SIZE"),
			WorkerPoolSize: v.GetInt("SETTLEMENT_WORKER_POOL_SIZE"),
		},
		Metrics: MetricsConfig{
			Port: v.GetInt("METRICS_PORT"),
		},
	}
}

func TestConfig_Validate_HappyPath(t *testing.T) {
	cfg := defaultConfig(t)
	assert.NoError(t, cfg.validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(cfg *Config)
		expected string
	}{
		{
			name:     "MissingMongoURI",
			mutate:   func(cfg *Config) { cfg.MongoDB.URI = "" },
			expected: "MONGO_URI is required",
		},
		{
			name:     "MissingTimezone",
			mutate:   func(cfg *Config) { cfg.Close.BusinessTimezone = "" },
			expected: "BUSINESS_TIMEZONE is required",
		},
		{
			name:     "ZeroDailyCloseLease",
			mutate:   func(cfg *Config) { cfg.Close.LeaseTTL = 0 },
			expected: "DAILY_CLOSE_LEASE_MS must be greater than 0",
		},
		{
			name:     "NegativeBacklog",
			mutate:   func(cfg *Config) { cfg.Settlement.BacklogSize = -1 },
			expected: "SETTLEMENT_BACKLOG_SIZE must be greater than 0",
		},
		{
			name:     "MissingReportTopic",
			mutate:   func(cfg *Config) { cfg.Kafka.ReportJobTopic = "" },
			expected: "KAFKA_REPORT_JOB_TOPIC is required",
		},
		{
			name:     "MissingPostgresURL",
			mutate:   func(cfg *Config) { cfg.Postgres.URL = "" },
			expected: "POSTGRES_URL is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}
}
