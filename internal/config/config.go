// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/riskengine/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Directory holding the risk database (always absolute)
	LogLevel    string
	Port        int
	DevMode     bool
	CORSOrigins []string
	Risk        RiskConfig
	Scheduler   SchedulerConfig
}

// RiskConfig holds calculator settings.
type RiskConfig struct {
	MonteCarloIterations int
	MonteCarloDays       int
	MonteCarloSeed       uint64 // 0 seeds every simulation from the clock
	MaxIterations        int
	MonteCarloTimeout    time.Duration
	StrictScenarios      bool
	InverseNormal        bool
	Scenarios            map[string]float64  // merged over the default scenario table
	ZScores              map[float64]float64 // merged over the default z-score table
	MarginCallThreshold  float64
	SpikeSigmas          float64
}

// SchedulerConfig holds cron schedules for background stop maintenance.
type SchedulerConfig struct {
	ReevaluateSchedule string
	SnapshotSchedule   string
	SnapshotRetention  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("RISK_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	scenarios, err := utils.ParseFloatPairs(getEnv("RISK_SCENARIOS", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RISK_SCENARIOS: %w", err)
	}

	zScores, err := parseZScores(getEnv("RISK_ZSCORES", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RISK_ZSCORES: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvAsInt("PORT", 8010),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		CORSOrigins: utils.ParseCSV(getEnv("RISK_CORS_ORIGINS", "*")),
		Risk: RiskConfig{
			MonteCarloIterations: getEnvAsInt("RISK_MC_ITERATIONS", 10000),
			MonteCarloDays:       getEnvAsInt("RISK_MC_DAYS", 1),
			MonteCarloSeed:       getEnvAsUint64("RISK_MC_SEED", 0),
			MaxIterations:        getEnvAsInt("RISK_MC_MAX_ITERATIONS", 1000000),
			MonteCarloTimeout:    time.Duration(getEnvAsInt("RISK_MC_TIMEOUT_SECONDS", 30)) * time.Second,
			StrictScenarios:      getEnvAsBool("RISK_STRICT_SCENARIOS", false),
			InverseNormal:        getEnvAsBool("RISK_INVERSE_NORMAL", false),
			Scenarios:            scenarios,
			ZScores:              zScores,
			MarginCallThreshold:  getEnvAsFloat("RISK_MARGIN_CALL_THRESHOLD", 95.0),
			SpikeSigmas:          getEnvAsFloat("RISK_SPIKE_SIGMAS", 2.0),
		},
		Scheduler: SchedulerConfig{
			ReevaluateSchedule: getEnv("RISK_REEVALUATE_SCHEDULE", "@every 30s"),
			SnapshotSchedule:   getEnv("RISK_SNAPSHOT_SCHEDULE", "@every 1m"),
			SnapshotRetention:  getEnvAsInt("RISK_SNAPSHOT_RETENTION", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the risk database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "risk.db")
}

// Validate checks that the configuration can be used to start the engine
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d: must be in 1..65535", c.Port)
	}
	if c.Risk.MonteCarloIterations < 1 {
		return fmt.Errorf("invalid RISK_MC_ITERATIONS %d: must be at least 1", c.Risk.MonteCarloIterations)
	}
	if c.Risk.MonteCarloDays < 1 {
		return fmt.Errorf("invalid RISK_MC_DAYS %d: must be at least 1", c.Risk.MonteCarloDays)
	}
	if c.Risk.MaxIterations < c.Risk.MonteCarloIterations {
		return fmt.Errorf("invalid RISK_MC_MAX_ITERATIONS %d: below RISK_MC_ITERATIONS", c.Risk.MaxIterations)
	}
	for name, shock := range c.Risk.Scenarios {
		if shock <= -1 {
			return fmt.Errorf("invalid shock for scenario %q: %v would wipe out more than the position", name, shock)
		}
	}
	for confidence, z := range c.Risk.ZScores {
		if confidence <= 0 || confidence >= 1 || z < 0 {
			return fmt.Errorf("invalid z-score %v for confidence %v", z, confidence)
		}
	}
	if c.Risk.SpikeSigmas <= 0 {
		return fmt.Errorf("invalid RISK_SPIKE_SIGMAS %v: must be positive", c.Risk.SpikeSigmas)
	}
	if c.Scheduler.SnapshotRetention < 1 {
		return fmt.Errorf("invalid RISK_SNAPSHOT_RETENTION %d: must be at least 1", c.Scheduler.SnapshotRetention)
	}
	return nil
}

func parseZScores(s string) (map[float64]float64, error) {
	pairs, err := utils.ParseFloatPairs(s)
	if err != nil || pairs == nil {
		return nil, err
	}

	out := make(map[float64]float64, len(pairs))
	for key, z := range pairs {
		confidence, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid confidence level %q: %w", key, err)
		}
		out[confidence] = z
	}
	return out, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
