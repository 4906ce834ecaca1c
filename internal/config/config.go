// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DataDir       string // base directory for the price cache database
	AnalyticsPath string // path the analytics config was loaded from
	LogLevel      string
	Port          int
	DevMode       bool
	Analytics     AnalyticsConfig
}

// AnalyticsConfig describes the portfolio inputs and how to resolve prices.
// It is read from a YAML file so the fund lists stay editable without
// touching the environment.
type AnalyticsConfig struct {
	// HoldingsDir holds one CSV per account (or CSVs with an Account column).
	HoldingsDir string `yaml:"holdings_dir"`
	// WeightsCSV is the long-form (ticker, factor, weight) table.
	WeightsCSV string `yaml:"weights_csv"`
	// NormalizeWeights rescales each ticker's weights to sum to 1 on load.
	NormalizeWeights bool `yaml:"normalize_weights"`
	// HierarchyYAML is the nested factor category tree. Optional.
	HierarchyYAML string `yaml:"hierarchy_yaml"`
	// IgnoreTickers are dropped from holdings on load.
	IgnoreTickers []string `yaml:"ignore_tickers"`
	// ProxyFunds substitutes tickers on load, e.g. a 401k fund for its ETF twin.
	ProxyFunds map[string]string `yaml:"proxy_funds"`
	// QuoteAPIURL is the base URL of the quote service.
	QuoteAPIURL string `yaml:"quote_api_url"`
	// PriceTTL is how long cached prices stay fresh. Defaults to 15m.
	PriceTTL Duration `yaml:"price_ttl"`
	// RefreshSchedule is the cron spec of the background price refresh.
	// Empty disables the job.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// Load reads configuration from environment variables and the analytics
// YAML file.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	analyticsPath := getEnv("FOLIO_CONFIG", "folio.yaml")
	analytics, err := LoadAnalytics(analyticsPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		DataDir:       absDataDir,
		AnalyticsPath: analyticsPath,
		Port:          getEnvAsInt("FOLIO_PORT", 8080),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Analytics:     *analytics,
	}, nil
}

// LoadAnalytics reads and validates the analytics YAML file.
func LoadAnalytics(path string) (*AnalyticsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics config %s: %w", path, err)
	}

	var cfg AnalyticsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse analytics config %s: %w", path, err)
	}

	if cfg.HoldingsDir == "" {
		return nil, fmt.Errorf("analytics config %s: holdings_dir is required", path)
	}
	if cfg.WeightsCSV == "" {
		return nil, fmt.Errorf("analytics config %s: weights_csv is required", path)
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = Duration(15 * time.Minute)
	}
	return &cfg, nil
}

// Duration parses YAML values like "15m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
