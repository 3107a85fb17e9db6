// Package config provides configuration for the orchestration service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Database
	DatabaseURL string

	// LLM provider
	Mode        string // MOCK or LIVE
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	ClientTTL   time.Duration
	PlanTimeout time.Duration

	// Engine bounds
	ExecutionTimeout   time.Duration
	MaxRetries         int
	CoverageThreshold  float64 // fraction of specialists that must be heard for a graceful cap
	HeartbeatInterval  time.Duration
	TurnLimits         TurnLimits
	MaxStreamEventsLag int

	// Logging
	LogLevel string
}

// TurnLimits are the default per-participant invocation caps for the
// dynamic handoff mesh.
type TurnLimits struct {
	Coordinator int `yaml:"coordinator"`
	Specialist  int `yaml:"specialist"`
}

// overlay is the optional YAML tuning file shape.
type overlay struct {
	TurnLimits        *TurnLimits `yaml:"turn_limits"`
	CoverageThreshold *float64    `yaml:"coverage_threshold"`
	ExecutionTimeoutS *int        `yaml:"execution_timeout_seconds"`
	PlanTimeoutS      *int        `yaml:"plan_timeout_seconds"`
}

// Load loads configuration from environment variables, then applies the
// optional YAML overlay named by SKYOPS_CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		InternalPort:      getEnvInt("INTERNAL_PORT", 8081),
		DatabaseURL:       getEnv("DATABASE_URL", "file:skyops.db?cache=shared&mode=rwc"),
		Mode:              getEnv("SKYOPS_MODE", "MOCK"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		ClientTTL:         time.Duration(getEnvInt("LLM_CLIENT_TTL_MS", 1800000)) * time.Millisecond,
		PlanTimeout:       time.Duration(getEnvInt("LLM_PLAN_TIMEOUT_MS", 30000)) * time.Millisecond,
		ExecutionTimeout:  time.Duration(getEnvInt("EXECUTION_TIMEOUT_MS", 600000)) * time.Millisecond,
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		CoverageThreshold: 1.0,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_MS", 15000)) * time.Millisecond,
		TurnLimits: TurnLimits{
			Coordinator: getEnvInt("COORDINATOR_TURN_LIMIT", 8),
			Specialist:  getEnvInt("SPECIALIST_TURN_LIMIT", 2),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("SKYOPS_CONFIG_FILE"); path != "" {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, fmt.Errorf("load config overlay %s: %w", path, err)
		}
	}
	return cfg, nil
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if o.TurnLimits != nil {
		if o.TurnLimits.Coordinator > 0 {
			c.TurnLimits.Coordinator = o.TurnLimits.Coordinator
		}
		if o.TurnLimits.Specialist > 0 {
			c.TurnLimits.Specialist = o.TurnLimits.Specialist
		}
	}
	if o.CoverageThreshold != nil && *o.CoverageThreshold > 0 && *o.CoverageThreshold <= 1 {
		c.CoverageThreshold = *o.CoverageThreshold
	}
	if o.ExecutionTimeoutS != nil && *o.ExecutionTimeoutS > 0 {
		c.ExecutionTimeout = time.Duration(*o.ExecutionTimeoutS) * time.Second
	}
	if o.PlanTimeoutS != nil && *o.PlanTimeoutS > 0 {
		c.PlanTimeout = time.Duration(*o.PlanTimeoutS) * time.Second
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
