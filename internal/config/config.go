package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported providers
const (
	ProviderYahoo        = "yahoo"
	ProviderAlphaVantage = "alphavantage"
)

// Config holds all configuration for the stock aggregator service.
type Config struct {
	// Market-data provider and its endpoints
	Provider            string `mapstructure:"provider"`
	YahooBaseURL        string `mapstructure:"yahoo_base_url"`
	YahooCookieURL      string `mapstructure:"yahoo_cookie_url"`
	AlphavantageBaseURL string `mapstructure:"alphavantage_base_url"`
	AlphavantageAPIKey  string `mapstructure:"alphavantage_api_key"`

	// Ticker universe
	IndexSymbol  string `mapstructure:"index_symbol"`
	FallbackFile string `mapstructure:"fallback_file"`

	// Fetch loop
	Concurrency   int           `mapstructure:"concurrency"`
	SleepInterval time.Duration `mapstructure:"sleep_interval"`
	HistoryDays   int           `mapstructure:"history_days"`
	ClosesWindow  int           `mapstructure:"closes_window"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	RateLimitRPS  float64       `mapstructure:"rate_limit_rps"`
	RetryCount    int           `mapstructure:"retry_count"`

	// Serving
	ListenAddr      string `mapstructure:"listen_addr"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	RefreshOnStart  bool   `mapstructure:"refresh_on_start"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"provider":              ProviderYahoo,
	"yahoo_base_url":        "https://query2.finance.yahoo.com",
	"yahoo_cookie_url":      "https://fc.yahoo.com",
	"alphavantage_base_url": "https://www.alphavantage.co/query",
	"alphavantage_api_key":  "",
	"index_symbol":          "^OEX",
	"fallback_file":         "",
	"concurrency":           8,
	"sleep_interval":        "120ms",
	"history_days":          30,
	"closes_window":         5,
	"run_timeout":           "0s",
	"rate_limit_rps":        0,
	"retry_count":           3,
	"listen_addr":           ":8080",
	"refresh_schedule":      "",
	"refresh_on_start":      false,
	"log_level":             "info",
	"log_format":            "text",
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values. Every key
// is also available as the upper-cased environment variable of the same
// name (e.g. CONCURRENCY, SLEEP_INTERVAL, ALPHAVANTAGE_API_KEY).
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
		v.BindEnv(key, strings.ToUpper(key))
	}

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.stockaggregator")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Provider = strings.ToLower(strings.TrimSpace(config.Provider))
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid or missing setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Provider {
	case ProviderYahoo:
	case ProviderAlphaVantage:
		if c.AlphavantageAPIKey == "" {
			problems = append(problems, "ALPHAVANTAGE_API_KEY is required for provider alphavantage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown PROVIDER %q", c.Provider))
	}

	if c.Concurrency < 1 {
		problems = append(problems, "CONCURRENCY must be at least 1")
	}
	if c.ClosesWindow < 1 {
		problems = append(problems, "CLOSES_WINDOW must be at least 1")
	}
	if c.HistoryDays < c.ClosesWindow {
		problems = append(problems, "HISTORY_DAYS must be at least CLOSES_WINDOW")
	}
	if c.SleepInterval < 0 {
		problems = append(problems, "SLEEP_INTERVAL must not be negative")
	}
	if c.RunTimeout < 0 {
		problems = append(problems, "RUN_TIMEOUT must not be negative")
	}
	if c.RetryCount < 0 {
		problems = append(problems, "RETRY_COUNT must not be negative")
	}
	if c.IndexSymbol == "" {
		problems = append(problems, "INDEX_SYMBOL must not be empty")
	}
	if c.ListenAddr == "" {
		problems = append(problems, "LISTEN_ADDR must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
