// Package config reads process configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vendstock/internal/core/apperror"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config holds every setting the binaries read at startup.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	StorageDriver string
	DatabaseURL   string
	BadgerDir     string

	NATSURL           string
	NATSSubjectPrefix string
	OutboxPoll        time.Duration
	OutboxBatch       int
	DueScanInterval   time.Duration

	OTelStdout bool
	SessionTTL time.Duration
}

// Development reports whether the process runs in development mode.
func (c Config) Development() bool { return c.Env == "development" }

// Load reads .env (a missing file is fine) and then the environment.
func Load() (Config, error) {
	cfg := Read()
	return cfg, cfg.Validate()
}

// Read is Load without validation, for tools whose flags may still override the result.
func Read() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() Config {
	return Config{
		Env:               getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnv("APP_PORT", "8080"),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		BadgerDir:         getEnv("BADGER_DIR", "./data/badger"),
		NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "vendstock"),
		OutboxPoll:        getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatch:       getEnvInt("OUTBOX_BATCH_SIZE", 100),
		DueScanInterval:   getEnvDuration("DUE_SCAN_INTERVAL", time.Hour),
		OTelStdout:        getEnvBool("OTEL_STDOUT", false),
		SessionTTL:        getEnvDuration("SESSION_TTL", 4*time.Hour),
	}
}

// Validate checks combinations that cannot work.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return apperror.NewValidation("DATABASE_URL is required for the postgres driver")
		}
	case DriverBadger:
		if c.BadgerDir == "" {
			return apperror.NewValidation("BADGER_DIR is required for the badger driver")
		}
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown STORAGE_DRIVER %q", c.StorageDriver)).
			WithDetail("allowed", []string{DriverPostgres, DriverBadger})
	}
	if c.SessionTTL <= 0 {
		return apperror.NewValidation("SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
