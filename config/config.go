package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/pricemonitor/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr  string
	BlockCooldown time.Duration

	// Scheduling and HTTP
	Schedule string
	HTTPAddr string

	// Baseline snapshot
	SnapshotBackend  string
	SnapshotPath     string
	SnapshotRedisKey string
	PruneAfter       time.Duration

	// Change detection
	ChangeThreshold float64

	// Fetcher
	MaxRetries        int
	RetryMinDelay     time.Duration
	RetryMaxDelay     time.Duration
	FetchTimeout      time.Duration
	UserAgents        []string
	RequestsPerMinute int

	// Sources
	SourceConcurrency int
	MaxCardsPerSource int
	ETMCatalogURL     string
	SourcesFile       string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "price_changes"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		BlockCooldown:        time.Duration(getEnvInt("BLOCK_COOLDOWN_SECONDS", 600)) * time.Second,
		Schedule:             getEnv("SCHEDULE", "@every 1h"),
		HTTPAddr:             ":" + getEnv("PORT", "8000"),
		SnapshotBackend:      getEnv("SNAPSHOT_BACKEND", "file"),
		SnapshotPath:         getEnv("SNAPSHOT_PATH", "prices.json"),
		SnapshotRedisKey:     getEnv("SNAPSHOT_REDIS_KEY", "pricemonitor:baseline"),
		PruneAfter:           time.Duration(getEnvInt("BASELINE_PRUNE_AFTER_HOURS", 0)) * time.Hour,
		ChangeThreshold:      getEnvFloat("CHANGE_THRESHOLD_PERCENT", 10.0),
		MaxRetries:           getEnvInt("FETCH_MAX_RETRIES", 3),
		RetryMinDelay:        time.Duration(getEnvInt("FETCH_MIN_DELAY_SECONDS", 2)) * time.Second,
		RetryMaxDelay:        time.Duration(getEnvInt("FETCH_MAX_DELAY_SECONDS", 5)) * time.Second,
		FetchTimeout:         time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		UserAgents:           getEnvList("FETCH_USER_AGENTS"),
		RequestsPerMinute:    getEnvInt("FETCH_REQUESTS_PER_MINUTE", 0),
		SourceConcurrency:    getEnvInt("SOURCE_CONCURRENCY", 2),
		MaxCardsPerSource:    getEnvInt("MAX_CARDS_PER_SOURCE", 20),
		ETMCatalogURL:        getEnv("ETM_CATALOG_URL", "https://www.etm.ru/catalog/6040_obogrevatelnye_pribory"),
		SourcesFile:          getEnv("SOURCES_FILE", ""),
		Environment:          getEnv("PRICEMONITOR_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.SnapshotBackend {
	case "file":
		if c.SnapshotPath == "" {
			return errors.NewConfiguration("SNAPSHOT_PATH must be set for the file backend", nil)
		}
	case "redis":
		if c.SnapshotRedisKey == "" {
			return errors.NewConfiguration("SNAPSHOT_REDIS_KEY must be set for the redis backend", nil)
		}
	default:
		return errors.NewConfiguration(fmt.Sprintf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend), nil)
	}

	if c.ChangeThreshold <= 0 {
		return errors.NewConfiguration("CHANGE_THRESHOLD_PERCENT must be positive", nil)
	}
	if c.MaxRetries < 1 {
		return errors.NewConfiguration("FETCH_MAX_RETRIES must be at least 1", nil)
	}
	if c.RetryMinDelay > c.RetryMaxDelay {
		return errors.NewConfiguration("FETCH_MIN_DELAY_SECONDS must not exceed FETCH_MAX_DELAY_SECONDS", nil)
	}
	if c.SourceConcurrency < 1 {
		return errors.NewConfiguration("SOURCE_CONCURRENCY must be at least 1", nil)
	}
	if c.RedisStreamCount < 1 {
		return errors.NewConfiguration("REDIS_STREAM_COUNT must be at least 1", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a "|"-separated variable; user agents contain commas
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
