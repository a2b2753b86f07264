// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string
	DatabaseURL string

	Generator    GeneratorConfig
	Audit        AuditConfig
	Retention    RetentionConfig
	RateLimit    RateLimitConfig
	SubjectsFile string

	SideEffectQueueSize int
	MaxRequestBodyBytes int64
}

// GeneratorConfig selects and tunes the primary generation capability.
type GeneratorConfig struct {
	Provider      string
	Model         string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GRPCAddress   string
	Timeout       time.Duration
	StoreTimeout  time.Duration
	Temperature   float64
	MaxTokens     int
}

// AuditConfig controls audit event sinks.
type AuditConfig struct {
	FileEnabled  bool
	Dir          string
	StoreEnabled bool
	QueueSize    int
}

// RetentionConfig controls the session retention worker. A zero Period
// disables the worker.
type RetentionConfig struct {
	Period   time.Duration
	Interval time.Duration
}

// RateLimitConfig bounds tutoring requests per learner.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", "./data/tutor.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Generator: GeneratorConfig{
			Provider:      strings.ToLower(getEnv("GENERATOR_PROVIDER", "gemini")),
			Model:         getEnv("GENERATOR_MODEL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GRPCAddress:   getEnv("GENERATOR_GRPC_ADDR", ""),
			Timeout:       getEnvDuration("GENERATION_TIMEOUT", 15*time.Second),
			StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),
			Temperature:   getEnvFloat("GENERATION_TEMPERATURE", 0.7),
			MaxTokens:     getEnvInt("GENERATION_MAX_TOKENS", 1024),
		},
		Audit: AuditConfig{
			FileEnabled:  getEnvBool("AUDIT_LOG_ENABLED", true),
			Dir:          getEnv("AUDIT_LOG_DIR", "./data/logs/audit"),
			StoreEnabled: getEnvBool("AUDIT_STORE_ENABLED", true),
			QueueSize:    getEnvInt("AUDIT_QUEUE_SIZE", 1000),
		},
		Retention: RetentionConfig{
			Period:   getEnvDuration("SESSION_RETENTION", 90*24*time.Hour),
			Interval: getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SubjectsFile:        getEnv("SUBJECTS_FILE", ""),
		SideEffectQueueSize: getEnvInt("SIDE_EFFECT_QUEUE_SIZE", 256),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	switch c.Generator.Provider {
	case "gemini", "openai", "grpc", "none":
	default:
		return fmt.Errorf("GENERATOR_PROVIDER must be gemini, openai, grpc or none, got %q", c.Generator.Provider)
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0")
	}
	if c.Generator.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("GENERATION_TEMPERATURE must be within [0, 2]")
	}
	if c.Generator.MaxTokens <= 0 {
		return fmt.Errorf("GENERATION_MAX_TOKENS must be > 0")
	}
	if c.Audit.FileEnabled && c.Audit.Dir == "" {
		return fmt.Errorf("AUDIT_LOG_DIR cannot be empty")
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be > 0")
	}
	if c.SideEffectQueueSize <= 0 {
		return fmt.Errorf("SIDE_EFFECT_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Retention.Period < 0 {
		return fmt.Errorf("SESSION_RETENTION cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "72h") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
