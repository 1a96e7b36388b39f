package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-engine/config"
)

func newTestClient(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	client, err := NewClient(cfg, NewRateLimiter(0, 0, 1000), NewProxyRotator(nil), NewMetrics())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestClientRetriesTransientStatus(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", "http://example.test/page", func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html>ok</html>"), nil
	})
	client.SetTransport(transport)

	body, err := client.Get(context.Background(), "http://example.test/page", "listing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("body = %q", body)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/page",
		httpmock.NewStringResponder(http.StatusBadGateway, ""))
	client.SetTransport(transport)

	_, err := client.Get(context.Background(), "http://example.test/page", "listing")
	var reqErr RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", reqErr.StatusCode)
	}
	if got := transport.GetTotalCallCount(); got != cfg.MaxRetries+1 {
		t.Fatalf("attempts = %d, want %d", got, cfg.MaxRetries+1)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	client.SetTransport(transport)

	_, err := client.Get(context.Background(), "http://example.test/missing", "detail")
	var reqErr RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", reqErr.StatusCode)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries on 4xx)", got)
	}
}

func TestClientPropagatesNetworkErrors(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/refused",
		httpmock.NewErrorResponder(errors.New("connection refused")))
	client.SetTransport(transport)

	_, err := client.Get(context.Background(), "http://example.test/refused", "detail")
	var reqErr RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (network errors are not retried)", got)
	}
}

func TestClientSetsDefaultHeaders(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	var captured http.Header
	transport.RegisterResponder("GET", "http://example.test/", func(req *http.Request) (*http.Response, error) {
		captured = req.Header.Clone()
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})
	client.SetTransport(transport)

	if _, err := client.Get(context.Background(), "http://example.test/", "listing"); err != nil {
		t.Fatalf("get: %v", err)
	}

	if got := captured.Get("User-Agent"); got != cfg.UserAgent {
		t.Fatalf("User-Agent = %q", got)
	}
	for _, header := range []string{"Accept", "Accept-Language", "Accept-Encoding", "Connection"} {
		if captured.Get(header) == "" {
			t.Fatalf("header %s not set", header)
		}
	}
}

func TestClientCachedDocumentFetchesOnce(t *testing.T) {
	cfg := fastConfig()
	client := newTestClient(t, cfg)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/front",
		httpmock.NewStringResponder(http.StatusOK, `<html><h1>Front</h1></html>`))
	client.SetTransport(transport)

	for i := 0; i < 3; i++ {
		doc, err := client.GetCachedDocument(context.Background(), "http://example.test/front", "resolve")
		if err != nil {
			t.Fatalf("cached get %d: %v", i, err)
		}
		if got := doc.Find("h1").Text(); got != "Front" {
			t.Fatalf("parsed document = %q", got)
		}
	}

	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("fetches = %d, want 1 (served from cache)", got)
	}
}

func TestClientBackoffCapped(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	client := newTestClient(t, cfg)

	if delay := client.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}

func TestErrorTypeLabels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "config", err: ConfigError{Err: errors.New("bad")}, expected: "config"},
		{name: "resolve", err: ResolveError{Filter: "x", Err: errors.New("bad")}, expected: "resolve"},
		{name: "page fetch", err: PageFetchError{URL: "u", Err: errors.New("bad")}, expected: "page_fetch"},
		{name: "item parse", err: ItemParseError{URL: "u", Err: errors.New("bad")}, expected: "item_parse"},
		{name: "request", err: RequestError{URL: "u", StatusCode: 404}, expected: "request"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
