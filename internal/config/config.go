package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the test case generation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	SessionTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DifyMode       string
	DifyBaseURL    string
	DifyAPIKey     string
	DifyTimeout    time.Duration
	DifyMaxRetries int

	UploadDir      string
	MaxUploadBytes int64

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "casegen"),
		AllowAnyOrigin:   false,
		SessionTTL:       2 * time.Hour,
		RedisAddr:        stringsTrimSpace("REDIS_ADDR"),
		RedisPassword:    stringsTrimSpace("REDIS_PASSWORD"),
		RedisDB:          0,
		DifyMode:         envOrDefault("DIFY_MODE", "auto"),
		DifyBaseURL:      envOrDefault("DIFY_BASE_URL", "https://api.dify.ai/v1"),
		DifyAPIKey:       stringsTrimSpace("DIFY_API_KEY"),
		DifyTimeout:      60 * time.Second,
		DifyMaxRetries:   3,
		UploadDir:        envOrDefault("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:   10 << 20,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:  15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", cfg.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.DifyTimeout, err = durationFromEnv("DIFY_TIMEOUT", cfg.DifyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DifyMaxRetries, err = intFromEnv("DIFY_MAX_RETRIES", cfg.DifyMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB, err = intFromEnv("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	maxUpload, err := intFromEnv("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.SessionTTL < time.Minute {
		return Config{}, fmt.Errorf("SESSION_TTL must be at least 1m")
	}
	if cfg.DifyMaxRetries < 0 {
		return Config{}, fmt.Errorf("DIFY_MAX_RETRIES must be >= 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
