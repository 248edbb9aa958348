package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// DataDir is the root that relative job paths resolve against.
	DataDir     string
	DepthColumn domain.DepthColumn
	ClassCount  int
	JoinKey     string

	// RunHistoryPath is the SQLite file run summaries are recorded in.
	// Empty disables the history.
	RunHistoryPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	depthColumn, err := domain.ParseDepthColumn(sharedcfg.EnvOrDefault("DEPTH_COLUMN", string(domain.DepthColumnMax)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEPTH_COLUMN: %w", err)
	}

	classCount, err := parseClassCount()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "swmm-simulation-completed"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "flood-enrichment-results"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "flood-report-etl"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DataDir:        sharedcfg.EnvOrDefault("DATA_DIR", "."),
		DepthColumn:    depthColumn,
		ClassCount:     classCount,
		JoinKey:        sharedcfg.EnvOrDefault("JOIN_KEY", domain.DefaultJoinKey),
		RunHistoryPath: sharedcfg.EnvOrDefault("RUN_HISTORY_PATH", ""),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseClassCount() (int, error) {
	s := sharedcfg.EnvOrDefault("CLASS_COUNT", "3")
	n, err := strconv.Atoi(s)
	if err != nil || n < 2 || n > 10 {
		return 0, errors.New("invalid CLASS_COUNT: must be an integer between 2 and 10")
	}
	return n, nil
}
