// Package models defines data structures shared across the engine.
package models

import (
	"fmt"
	"time"
)

// Record is one scraped entity as a field-name to scalar mapping. Field sets
// vary per site, but "name" and "url" are always present. Values are strings,
// numbers, or nil.
type Record map[string]any

// Name returns the record's mandatory name field.
func (r Record) Name() string {
	return r.String("name")
}

// URL returns the record's mandatory url field.
func (r Record) URL() string {
	return r.String("url")
}

// String returns the value under key as a string, or "" when the field is
// absent or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value under key. The second result is false when
// the field is absent, nil, or not numeric.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Validate ensures the record carries the fields every adapter must emit.
func (r Record) Validate() error {
	if r.Name() == "" {
		return fmt.Errorf("record missing name")
	}
	if r.URL() == "" {
		return fmt.Errorf("record missing url for %q", r.Name())
	}
	return nil
}

// SiteDescriptor identifies a scrape target. Immutable once constructed;
// read-only to the engine.
type SiteDescriptor struct {
	Name        string
	BaseURL     string
	Description string
}

// RunConfig carries the per-run parameters supplied by the caller.
type RunConfig struct {
	MaxItems       int
	PerItemDelay   time.Duration
	CategoryFilter string
}

// Validate rejects run parameters before any network activity happens.
func (rc RunConfig) Validate() error {
	if rc.MaxItems <= 0 {
		return fmt.Errorf("max items must be positive")
	}
	if rc.PerItemDelay < 0 {
		return fmt.Errorf("per-item delay cannot be negative")
	}
	return nil
}

// RunStats is the point-in-time statistics snapshot for one scrape run.
type RunStats struct {
	StartTime          time.Time
	EndTime            time.Time
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	ItemsScraped       int
	Errors             []string
}

// Duration reports elapsed run time. An in-flight run measures up to now.
func (s RunStats) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// SuccessRate reports the percentage of requests that succeeded.
func (s RunStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

// ItemsPerMinute reports the scraping rate over the run duration.
func (s RunStats) ItemsPerMinute() float64 {
	d := s.Duration()
	if d <= 0 {
		return 0
	}
	return float64(s.ItemsScraped) / d.Minutes()
}

// ScrapeResult is the final output of one scrape run. Records are ordered as
// scraped; a degraded run still carries whatever was collected.
type ScrapeResult struct {
	Site    SiteDescriptor
	Records []Record
	Stats   RunStats
}
