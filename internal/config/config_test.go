package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "gemini", cfg.Generator.Provider)
	assert.Equal(t, 15*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, 256, cfg.SideEffectQueueSize)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodyBytes)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://tutor@localhost/tutor")
	t.Setenv("GENERATOR_PROVIDER", "openai")
	t.Setenv("GENERATION_TIMEOUT", "30")
	t.Setenv("SESSION_RETENTION", "72h")
	t.Setenv("GENERATION_TEMPERATURE", "0.2")
	t.Setenv("AUDIT_LOG_ENABLED", "off")
	t.Setenv("FRONTEND_URL", "https://tutor.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, 72*time.Hour, cfg.Retention.Period)
	assert.InDelta(t, 0.2, cfg.Generator.Temperature, 1e-9)
	assert.False(t, cfg.Audit.FileEnabled)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"unknown driver":     {"DB_DRIVER", "mysql"},
		"postgres no dsn":    {"DB_DRIVER", "postgres"},
		"unknown provider":   {"GENERATOR_PROVIDER", "llama"},
		"zero queue":         {"SIDE_EFFECT_QUEUE_SIZE", "0"},
		"negative timeout":   {"GENERATION_TIMEOUT", "-1s"},
		"hot temperature":    {"GENERATION_TEMPERATURE", "3.5"},
		"zero rate requests": {"RATE_LIMIT_REQUESTS", "0"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("TUTOR_TEST_INT", "many")
	t.Setenv("TUTOR_TEST_BOOL", "maybe")
	t.Setenv("TUTOR_TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("TUTOR_TEST_INT", 7))
	assert.True(t, getEnvBool("TUTOR_TEST_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("TUTOR_TEST_DURATION", time.Second))
}
