package scraper

import (
	"errors"
	"fmt"
)

// ConfigError reports an unknown site name or invalid run parameters. It is
// the only error raised before any network activity.
type ConfigError struct {
	Err error
}

func (e ConfigError) Error() string {
	return fmt.Errorf("config: %w", e.Err).Error()
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// ResolveError reports a category/tag filter that could not be resolved to a
// filtered listing URL. Non-fatal: the run falls back to the base URL.
type ResolveError struct {
	Filter string
	Err    error
}

func (e ResolveError) Error() string {
	return fmt.Errorf("resolve filter %q: %w", e.Filter, e.Err).Error()
}

func (e ResolveError) Unwrap() error {
	return e.Err
}

// PageFetchError reports a listing page unreachable after retries. Fatal to
// the pagination loop only; already-collected links are still processed.
type PageFetchError struct {
	URL string
	Err error
}

func (e PageFetchError) Error() string {
	return fmt.Errorf("fetch page %s: %w", e.URL, e.Err).Error()
}

func (e PageFetchError) Unwrap() error {
	return e.Err
}

// ItemParseError reports a single unparsable item. Logged and skipped, never
// fatal to the run.
type ItemParseError struct {
	URL string
	Err error
}

func (e ItemParseError) Error() string {
	return fmt.Errorf("parse item %s: %w", e.URL, e.Err).Error()
}

func (e ItemParseError) Unwrap() error {
	return e.Err
}

// RequestError reports a non-retryable HTTP or network failure. StatusCode is
// zero for transport-level failures.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Errorf("request %s: %w", e.URL, e.Err).Error()
}

func (e RequestError) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var config ConfigError
	if errors.As(err, &config) {
		return "config"
	}
	var resolve ResolveError
	if errors.As(err, &resolve) {
		return "resolve"
	}
	var pageFetch PageFetchError
	if errors.As(err, &pageFetch) {
		return "page_fetch"
	}
	var itemParse ItemParseError
	if errors.As(err, &itemParse) {
		return "item_parse"
	}
	var request RequestError
	if errors.As(err, &request) {
		return "request"
	}
	return "other"
}

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
