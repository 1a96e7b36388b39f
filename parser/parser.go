// Package parser holds the canonical field parsing rules shared by the site
// adapters and the downstream cleaning stage. Adapters and pipeline must not
// duplicate these patterns.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	controlRe    = regexp.MustCompile(`[\x00-\x1F\x7F]`)

	// Price patterns tried in order; first match wins.
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[\$£€¥₹]\s*([\d,]+\.?\d*)`), // $12.99
		regexp.MustCompile(`([\d,]+\.?\d*)\s*[\$£€¥₹]`), // 12.99$
		regexp.MustCompile(`([\d,]+\.?\d*)`),            // 12.99
	}

	// Rating patterns tried in order; first match wins.
	ratingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([\d.]+)\s*out\s*of\s*[\d.]+`), // 4.5 out of 5
		regexp.MustCompile(`(?i)([\d.]+)\s*/\s*[\d.]+`),        // 4.5/5
		regexp.MustCompile(`(?i)([\d.]+)\s*stars?`),            // 4.5 stars
		regexp.MustCompile(`(?i)Rating:\s*([\d.]+)`),           // Rating: 4.5
		regexp.MustCompile(`([\d.]+)`),                         // 4.5
	}
)

// CleanText collapses whitespace and strips control characters.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = controlRe.ReplaceAllString(text, "")
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ParsePrice extracts a numeric price from free-form text. Currency-prefixed,
// currency-suffixed, and bare-numeric forms are tried in that order, with
// thousands separators stripped. The second result is false when no pattern
// matches.
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}

// Currency maps the first currency symbol found in text to an ISO code.
// Defaults to USD when no symbol appears.
func Currency(text string) string {
	symbols := []struct {
		symbol string
		code   string
	}{
		{"$", "USD"},
		{"£", "GBP"},
		{"€", "EUR"},
		{"¥", "JPY"},
		{"₹", "INR"},
	}
	for _, s := range symbols {
		if strings.Contains(text, s.symbol) {
			return s.code
		}
	}
	return "USD"
}

// ParseRating extracts a rating from free-form text and rescales it onto a
// 0-5 scale: values over 5 are treated as a 10-point scale (divide by 2),
// and the result is clamped to [0, 5]. The second result is false when no
// pattern matches.
func ParseRating(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, pattern := range ratingPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if value > 5 {
			value /= 2
		}
		return clamp(value, 0, 5), true
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
