package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// PostGIS connection. Host, database, user and password are required.
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// NativeSRID is the projection of the forecast grid; it also names the
	// native geometry column (geom_<srid>).
	NativeSRID int

	BatchSize int

	// MaxUnresolvedFraction is the share of forecast records allowed to have
	// no matching cell before a file is rejected.
	MaxUnresolvedFraction float64

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	port, err := parseIntRange("PSQL_PORT", 5432, 1, 65535)
	if err != nil {
		return nil, err
	}

	srid, err := parseIntRange("NATIVE_SRID", 6931, 1, 999999)
	if err != nil {
		return nil, err
	}

	batchSize, err := parseIntRange("BATCH_SIZE", 1000, 1, 100000)
	if err != nil {
		return nil, err
	}

	maxUnresolved, err := parseFraction("MAX_UNRESOLVED_FRACTION", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PostgresHost:     os.Getenv("PSQL_HOST"),
		PostgresPort:     port,
		PostgresDB:       os.Getenv("PSQL_DB"),
		PostgresUser:     os.Getenv("PSQL_USER"),
		PostgresPassword: os.Getenv("PSQL_PWD"),
		PostgresSSLMode:  sharedcfg.EnvOrDefault("PSQL_SSLMODE", "require"),

		NativeSRID:            srid,
		BatchSize:             batchSize,
		MaxUnresolvedFraction: maxUnresolved,

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "forecast-files"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "forecast-synced"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "forecast-sync"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
	}

	if err := cfg.validatePostgres(); err != nil {
		return nil, err
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

func (c *Config) validatePostgres() error {
	required := []struct {
		name  string
		value string
	}{
		{"PSQL_HOST", c.PostgresHost},
		{"PSQL_DB", c.PostgresDB},
		{"PSQL_USER", c.PostgresUser},
		{"PSQL_PWD", c.PostgresPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	return nil
}

func parseIntRange(name string, def, lo, hi int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", name, lo, hi)
	}
	return n, nil
}

func parseFraction(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s: must be a number in [0, 1]", name)
	}
	return f, nil
}
