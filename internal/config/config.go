// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, shared by the backend server
// and the per-device sync agent.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (backend only; uses in-memory records if not set)
	DatabaseURL string

	// Agent settings
	AgentPort  string
	BackendURL string // Base URL of the backend record store
	StorageURL string // Base URL of the receipt object store
	DeviceID   string // Stable identity of this device/tab (generated if empty)

	// Durable local mirror (agent only; in-memory mirror if not set)
	RedisAddr     string
	RedisPassword string

	// Connectivity monitor
	ProbeInterval   time.Duration
	DebounceWindow  time.Duration
	RecoveredWindow time.Duration

	// Drain policy
	DrainBaseDelay  time.Duration
	DrainMaxDelay   time.Duration
	DrainMaxRetries int
	SweepInterval   time.Duration

	// Security
	APIToken      string // Bearer token the agent presents to the backend
	AdminSecret   string // Admin review/settings endpoints
	SessionSecret string // HMAC secret for session tokens issued by the backend

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort            = "8080"
	DefaultAgentPort       = "8090"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultBackendURL      = "http://localhost:8080"
	DefaultProbeInterval   = 15 * time.Second
	DefaultDebounceWindow  = 2 * time.Second
	DefaultRecoveredWindow = 10 * time.Second
	DefaultDrainBaseDelay  = 2 * time.Second
	DefaultDrainMaxDelay   = 5 * time.Minute
	DefaultDrainMaxRetries = 8
	DefaultSweepInterval   = 30 * time.Second
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AgentPort:       getEnv("AGENT_PORT", DefaultAgentPort),
		BackendURL:      getEnv("BACKEND_URL", DefaultBackendURL),
		StorageURL:      os.Getenv("STORAGE_URL"),
		DeviceID:        os.Getenv("DEVICE_ID"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		ProbeInterval:   getEnvDuration("PROBE_INTERVAL", DefaultProbeInterval),
		DebounceWindow:  getEnvDuration("DEBOUNCE_WINDOW", DefaultDebounceWindow),
		RecoveredWindow: getEnvDuration("RECOVERED_WINDOW", DefaultRecoveredWindow),
		DrainBaseDelay:  getEnvDuration("DRAIN_BASE_DELAY", DefaultDrainBaseDelay),
		DrainMaxDelay:   getEnvDuration("DRAIN_MAX_DELAY", DefaultDrainMaxDelay),
		DrainMaxRetries: int(getEnvInt64("DRAIN_MAX_RETRIES", DefaultDrainMaxRetries)),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		APIToken:        os.Getenv("API_TOKEN"),
		AdminSecret:     os.Getenv("ADMIN_SECRET"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.DrainMaxRetries <= 0 {
		return fmt.Errorf("DRAIN_MAX_RETRIES must be positive")
	}
	if c.DrainBaseDelay <= 0 || c.DrainMaxDelay < c.DrainBaseDelay {
		return fmt.Errorf("drain delays must satisfy 0 < DRAIN_BASE_DELAY <= DRAIN_MAX_DELAY")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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
