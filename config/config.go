// Package config holds engine configuration and environment helpers.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds engine-level configuration. Per-run parameters (item quota,
// per-item delay, category filter) live in models.RunConfig instead.
type Config struct {
	UserAgent string
	Timeout   time.Duration

	// Retry policy for idempotent GETs.
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	// Politeness controls.
	RequestsPerMinute int
	MinDelay          time.Duration // jitter floor between requests
	MaxDelay          time.Duration // jitter ceiling between requests
	PageDelay         time.Duration // fixed delay between listing pages

	// Optional egress proxies; empty means direct connection.
	Proxies []string

	// Listing-page cache entries kept by the HTTP client.
	CacheSize int

	OutputFile   string
	OutputFormat string // csv, json, xlsx, or dual
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns conservative defaults for the demo targets.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryBackoff:      500 * time.Millisecond,
		RetryBackoffMax:   8 * time.Second,
		RequestsPerMinute: 30,
		MinDelay:          time.Second,
		MaxDelay:          3 * time.Second,
		PageDelay:         time.Second,
		CacheSize:         32,
		OutputFile:        "output/records.csv",
		OutputFormat:      "csv",
		MetricsAddr:       "",
		Verbose:           false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.MaxDelay, c.MinDelay)
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	for _, proxy := range c.Proxies {
		parsed, err := url.Parse(proxy)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("invalid proxy URL %q", proxy)
		}
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "xlsx", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, or dual")
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration reads a duration environment override (e.g. "1500ms", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
