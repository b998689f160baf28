package config

import (
	"os"
	"strconv"
	"time"

	"bayescal/internal/errors"
)

// Config is the process-level configuration read from the environment.
// Per-run settings live in a RunFile.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Simulator SimulatorConfig
	Metrics   MetricsConfig
	Run       RunDefaults
}

// DatabaseConfig selects the run store. An empty URL disables persistence.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// ServerConfig holds the demo simulator server settings
type ServerConfig struct {
	Port string
}

// SimulatorConfig points the HTTP evaluator at a remote simulator.
type SimulatorConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string
}

// RunDefaults fill in fields a RunFile leaves empty.
type RunDefaults struct {
	Seed        int64
	Parallelism int
	OutputDir   string
}

// Load reads configuration from environment variables and validates it.
// Callers load .env files (godotenv) before calling Load.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("CALIB_DB_DRIVER", "sqlite"),
			URL:    getEnvOrDefault("CALIB_DATABASE_URL", os.Getenv("DATABASE_URL")),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8090"),
		},
		Simulator: SimulatorConfig{
			URL:           getEnvOrDefault("CALIB_SIMULATOR_URL", ""),
			Timeout:       getEnvDurationOrDefault("CALIB_EVAL_TIMEOUT", 0),
			RatePerSecond: getEnvFloatOrDefault("CALIB_EVAL_RATE", 0),
			Burst:         getEnvIntOrDefault("CALIB_EVAL_BURST", 1),
		},
		Metrics: MetricsConfig{
			Addr: getEnvOrDefault("CALIB_METRICS_ADDR", ""),
		},
		Run: RunDefaults{
			Seed:        int64(getEnvIntOrDefault("CALIB_SEED", 42)),
			Parallelism: getEnvIntOrDefault("CALIB_PARALLELISM", 1),
			OutputDir:   getEnvOrDefault("CALIB_OUTPUT_DIR", "."),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return errors.ConfigInvalid("CALIB_DB_DRIVER must be sqlite or postgres")
	}
	if config.Simulator.Timeout < 0 {
		return errors.ConfigInvalid("CALIB_EVAL_TIMEOUT must not be negative")
	}
	if config.Simulator.RatePerSecond < 0 {
		return errors.ConfigInvalid("CALIB_EVAL_RATE must not be negative")
	}
	if config.Simulator.Burst < 1 {
		return errors.ConfigInvalid("CALIB_EVAL_BURST must be at least 1")
	}
	if config.Run.Parallelism < 1 {
		return errors.ConfigInvalid("CALIB_PARALLELISM must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
