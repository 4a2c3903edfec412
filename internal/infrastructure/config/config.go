// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds the tunable knobs of the matching engine.
type MatchingConfig struct {
	AutoMatchThreshold float64 `yaml:"auto_match_threshold"`
	AmountTolerance    float64 `yaml:"amount_tolerance"`
	SuggestionFloor    float64 `yaml:"suggestion_floor"`
	Workers            int     `yaml:"workers"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file. Environment references like
// ${RECONCILE_DB_PATH} inside the file are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("RECONCILE_PORT", 8080),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILE_DB_PATH", "reconcile.db"),
		},
		Matching: MatchingConfig{
			AutoMatchThreshold: getEnvFloat("RECONCILE_AUTO_MATCH_THRESHOLD", 0.70),
			AmountTolerance:    getEnvFloat("RECONCILE_AMOUNT_TOLERANCE", 0.01),
			SuggestionFloor:    getEnvFloat("RECONCILE_SUGGESTION_FLOOR", 0.30),
			Workers:            getEnvInt("RECONCILE_MATCH_WORKERS", 4),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries config.yaml first, then falls back to the environment.
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries the given path, then falls back to the
// environment.
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconcile.db"
	}
	if c.Matching.AutoMatchThreshold == 0 {
		c.Matching.AutoMatchThreshold = 0.70
	}
	if c.Matching.AmountTolerance == 0 {
		c.Matching.AmountTolerance = 0.01
	}
	if c.Matching.SuggestionFloor == 0 {
		c.Matching.SuggestionFloor = 0.30
	}
	if c.Matching.Workers == 0 {
		c.Matching.Workers = 4
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default.
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback.
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var result float64
		if _, err := fmt.Sscanf(val, "%g", &result); err == nil {
			return result
		}
	}
	return fallback
}
