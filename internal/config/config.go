// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // base directory for databases and cached price data
	LogLevel       string
	LogPretty      bool
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64
	RiskFreeRate   float64
	PeriodsPerYear float64
	Metric         string // default objective metric for searches
	Seed           int64
	DaemonSchedule string // cron schedule for daemon-mode re-optimization
}

// Load reads configuration from environment variables, with .env support
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MOMENTUM_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		InitialCapital: getEnvAsFloat("INITIAL_CAPITAL", 100000),
		CommissionRate: getEnvAsFloat("COMMISSION_RATE", 0.001),
		SlippageRate:   getEnvAsFloat("SLIPPAGE_RATE", 0.0005),
		RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.0),
		PeriodsPerYear: getEnvAsFloat("PERIODS_PER_YEAR", 252),
		Metric:         getEnv("OBJECTIVE_METRIC", "sharpe_ratio"),
		Seed:           int64(getEnvAsInt("SEARCH_SEED", 42)),
		DaemonSchedule: getEnv("DAEMON_SCHEDULE", "0 0 18 * * FRI"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration before anything runs with it
func (c *Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital %.2f must be positive", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate %.4f out of range [0, 1)", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate %.4f out of range [0, 1)", c.SlippageRate)
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods per year %.1f must be positive", c.PeriodsPerYear)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// ResultsDBPath returns the path of the results database under DataDir
func (c *Config) ResultsDBPath() string {
	return filepath.Join(c.DataDir, "results.db")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
