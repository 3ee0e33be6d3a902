package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "STORAGE_DRIVER", "SESSION_TTL", "OTEL_STDOUT", "OUTBOX_BATCH_SIZE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.Development())
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 4*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 100, cfg.OutboxBatch)
	assert.False(t, cfg.OTelStdout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_DRIVER", "BADGER")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("OTEL_STDOUT", "true")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("OUTBOX_POLL_INTERVAL", "not-a-duration")

	cfg := FromEnv()
	assert.False(t, cfg.Development())
	assert.Equal(t, DriverBadger, cfg.StorageDriver)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.OTelStdout)
	assert.Equal(t, 25, cfg.OutboxBatch)
	assert.Equal(t, 2*time.Second, cfg.OutboxPoll)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{StorageDriver: DriverPostgres, DatabaseURL: "postgres://localhost/vendstock", SessionTTL: time.Hour}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"postgres ok", func(*Config) {}, false},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, true},
		{"badger without url", func(c *Config) { c.StorageDriver = DriverBadger; c.DatabaseURL = ""; c.BadgerDir = "/tmp/b" }, false},
		{"badger without dir", func(c *Config) { c.StorageDriver = DriverBadger }, true},
		{"unknown driver", func(c *Config) { c.StorageDriver = "mysql" }, true},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestRead_LoadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	env := "NATS_SUBJECT_PREFIX=fleet\nAPP_PORT=9999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Chdir(dir)

	// Registers restoration; the variable itself must be absent for .env to apply.
	t.Setenv("NATS_SUBJECT_PREFIX", "")
	require.NoError(t, os.Unsetenv("NATS_SUBJECT_PREFIX"))
	t.Setenv("APP_PORT", "8181")

	cfg := Read()
	assert.Equal(t, "fleet", cfg.NATSSubjectPrefix)
	assert.Equal(t, "8181", cfg.Port)
}
