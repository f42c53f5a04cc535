// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"plancost/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Pricing contains pricing client configuration
	Pricing PricingConfig `json:"pricing"`

	// Rules contains optimization rule configuration
	Rules RulesConfig `json:"rules"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`

	// Monitor contains live monitor configuration
	Monitor MonitorConfig `json:"monitor"`

	// History contains cost history configuration
	History HistoryConfig `json:"history"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// Source selects the pricing source implementation (catalog, aws)
	Source string `json:"source"`

	// DefaultCurrency is the default currency
	DefaultCurrency string `json:"default_currency"`

	// DefaultRegion is the AWS Pricing API endpoint region for the aws
	// source; resource regions come from the plan itself
	DefaultRegion string `json:"default_region"`

	// CacheEnabled enables price quote caching
	CacheEnabled bool `json:"cache_enabled"`

	// CacheTTLSeconds is how long cached quotes stay fresh
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// TTLOverridesSeconds overrides the TTL per service code
	TTLOverridesSeconds map[string]int `json:"ttl_overrides_seconds,omitempty"`

	// MaxInFlight bounds concurrent outbound lookups
	MaxInFlight int `json:"max_in_flight"`

	// RequestTimeoutSeconds bounds a single pricing call
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// OfflineFallback serves expired cache entries instead of failing
	OfflineFallback bool `json:"offline_fallback"`

	// Retry is the lookup retry policy
	Retry RetryConfig `json:"retry"`

	// Breaker is the circuit breaker policy
	Breaker BreakerConfig `json:"breaker"`
}

// RetryConfig contains the lookup backoff policy
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per lookup
	MaxAttempts int `json:"max_attempts"`

	// BaseDelayMS is the first backoff delay
	BaseDelayMS int `json:"base_delay_ms"`

	// Factor multiplies the delay after each attempt
	Factor float64 `json:"factor"`

	// MaxDelayMS caps the backoff delay
	MaxDelayMS int `json:"max_delay_ms"`
}

// BreakerConfig contains circuit breaker settings
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure streak that opens the circuit
	FailureThreshold int `json:"failure_threshold"`

	// CooldownSeconds is how long the circuit stays open before a probe
	CooldownSeconds int `json:"cooldown_seconds"`
}

// RulesConfig contains optimization rule settings
type RulesConfig struct {
	// Path points at an HCL file overriding rule thresholds
	Path string `json:"path,omitempty"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default export format
	DefaultFormat string `json:"default_format"`

	// ShowBreakdown includes per-component costs in terminal output
	ShowBreakdown bool `json:"show_breakdown"`
}

// MonitorConfig contains live monitor settings
type MonitorConfig struct {
	// IntervalSeconds is the refresh interval between runs
	IntervalSeconds int `json:"interval_seconds"`

	// MaxAttempts bounds recovery attempts for a failing run
	MaxAttempts int `json:"max_attempts"`

	// RunTimeoutSeconds is the wall-clock budget for one pipeline run
	RunTimeoutSeconds int `json:"run_timeout_seconds"`

	// WatchPlan re-runs immediately when the plan file changes
	WatchPlan bool `json:"watch_plan"`

	// MetricsAddr serves Prometheus metrics when set (live mode only)
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// HistoryConfig contains cost history settings
type HistoryConfig struct {
	// Enabled records run totals to the history database
	Enabled bool `json:"enabled"`

	// Path is the SQLite database path
	Path string `json:"path"`

	// RetentionDays is how long run records are kept
	RetentionDays int `json:"retention_days"`

	// PruneSchedule is a cron expression for scheduled pruning in live mode
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	historyPath := filepath.Join(homeDir, ".plancost", "history.db")

	return &Config{
		Version: "1.0",
		Pricing: PricingConfig{
			Source:          "catalog",
			DefaultCurrency: "USD",
			DefaultRegion:   "us-east-1",
			CacheEnabled:    true,
			CacheTTLSeconds: 86400, // 24 hours
			TTLOverridesSeconds: map[string]int{
				"AmazonEC2": 604800,  // 7 days
				"AmazonRDS": 604800,  // 7 days
				"AmazonS3":  2592000, // 30 days
				"AmazonEBS": 2592000, // 30 days
			},
			MaxInFlight:           4,
			RequestTimeoutSeconds: 30,
			OfflineFallback:       false,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelayMS: 100,
				Factor:      2.0,
				MaxDelayMS:  30000,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				CooldownSeconds:  30,
			},
		},
		Rules: RulesConfig{},
		Output: OutputConfig{
			DefaultFormat: "json",
			ShowBreakdown: true,
		},
		Monitor: MonitorConfig{
			IntervalSeconds:   30,
			MaxAttempts:       3,
			RunTimeoutSeconds: 120,
			WatchPlan:         true,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          historyPath,
			RetentionDays: 90,
			PruneSchedule: "0 3 * * *",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultPath returns the default configuration file location
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".plancost", "config.json")
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
