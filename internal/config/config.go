// Package config loads and validates service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	BatchConcurrency    int

	// Persistence. An empty DatabaseURL selects the in-memory model store.
	DatabaseURL string
	AutoMigrate bool

	// Model definition cache. An empty RedisURL selects the in-process cache.
	RedisURL      string
	ModelCacheTTL time.Duration

	// File-based models and reloading.
	ModelDir            string
	ModelWatchDebounce  time.Duration
	ModelReloadSchedule string // cron expression; empty disables scheduled reloads

	// Audit events. Empty KafkaBrokers logs events instead.
	KafkaBrokers []string
	KafkaTopic   string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	port, err := envInt("PORT", 8080)
	collect(err)
	readTimeout, err := envDuration("READ_TIMEOUT", 15*time.Second)
	collect(err)
	writeTimeout, err := envDuration("WRITE_TIMEOUT", 15*time.Second)
	collect(err)
	maxBody, err := envInt("MAX_REQUEST_BODY_BYTES", 4*1024*1024)
	collect(err)
	batch, err := envInt("BATCH_CONCURRENCY", 8)
	collect(err)
	autoMigrate, err := envBool("AUTO_MIGRATE", false)
	collect(err)
	cacheTTL, err := envDuration("MODEL_CACHE_TTL", 5*time.Minute)
	collect(err)
	debounce, err := envDuration("MODEL_WATCH_DEBOUNCE", 250*time.Millisecond)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	cfg := Config{
		Port:                port,
		ReadTimeout:         readTimeout,
		WriteTimeout:        writeTimeout,
		MaxRequestBodyBytes: int64(maxBody),
		BatchConcurrency:    batch,
		DatabaseURL:         envStr("DATABASE_URL", ""),
		AutoMigrate:         autoMigrate,
		RedisURL:            envStr("REDIS_URL", ""),
		ModelCacheTTL:       cacheTTL,
		ModelDir:            envStr("MODEL_DIR", ""),
		ModelWatchDebounce:  debounce,
		ModelReloadSchedule: envStr("MODEL_RELOAD_SCHEDULE", ""),
		KafkaBrokers:        envList("KAFKA_BROKERS"),
		KafkaTopic:          envStr("KAFKA_TOPIC", "decision-events"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "decisions"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT=%d is out of range", c.Port)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("config: BATCH_CONCURRENCY must be positive")
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		return fmt.Errorf("config: AUTO_MIGRATE requires DATABASE_URL")
	}
	if c.ModelCacheTTL < 0 {
		return fmt.Errorf("config: MODEL_CACHE_TTL must not be negative")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("config: KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
