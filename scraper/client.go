package scraper

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-engine/config"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// Client is the shared HTTP connection context: default headers, timeout,
// transparent retry on idempotent GETs, and optional proxy rotation. All
// engine traffic funnels through it, so the rate limiter is applied here,
// before every attempt.
type Client struct {
	cfg     *config.Config
	limiter *RateLimiter
	rotator *ProxyRotator
	metrics *Metrics
	cache   *lru.Cache[string, []byte]

	mu        sync.Mutex
	clients   map[string]*http.Client // keyed by proxy URL, "" = direct
	transport http.RoundTripper       // test override
}

// NewClient builds a client from cfg sharing the given limiter and rotator.
func NewClient(cfg *config.Config, limiter *RateLimiter, rotator *ProxyRotator, metrics *Metrics) (*Client, error) {
	cache, err := lru.New[string, []byte](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	return &Client{
		cfg:     cfg,
		limiter: limiter,
		rotator: rotator,
		metrics: metrics,
		cache:   cache,
		clients: make(map[string]*http.Client),
	}, nil
}

// SetTransport overrides the underlying round tripper. Tests use this to
// install a mock transport.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.mu.Lock()
	c.transport = rt
	c.clients = make(map[string]*http.Client)
	c.mu.Unlock()
}

// Get fetches rawURL through the rate limiter and retry policy, returning the
// decoded body. Retryable statuses (429, 500, 502, 503, 504) are re-attempted
// with capped exponential backoff; everything else surfaces as RequestError.
func (c *Client) Get(ctx context.Context, rawURL, phase string) ([]byte, error) {
	attempts := c.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, RequestError{URL: rawURL, Err: err}
		}

		body, status, err := c.doGet(ctx, rawURL, phase)
		if err != nil {
			reqErr := RequestError{URL: rawURL, Err: err}
			c.metrics.IncError(errorTypeLabel(reqErr))
			return nil, reqErr
		}
		if status >= 200 && status < 300 {
			return body, nil
		}
		if !retryableStatus(status) || attempt == attempts {
			reqErr := RequestError{URL: rawURL, StatusCode: status}
			c.metrics.IncError(errorTypeLabel(reqErr))
			return nil, reqErr
		}

		c.metrics.IncRetries()
		delay := c.backoff(attempt)
		slog.Debug("retrying request",
			slog.String("url", rawURL),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, RequestError{URL: rawURL, Err: err}
		}
	}
	// Unreachable: the loop always returns.
	return nil, RequestError{URL: rawURL, Err: context.Canceled}
}

// GetDocument fetches rawURL and parses the body as HTML.
func (c *Client) GetDocument(ctx context.Context, rawURL, phase string) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL, phase)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", rawURL, err)
	}
	return doc, nil
}

// GetCachedDocument is GetDocument backed by the LRU page cache. Used for
// resolution-phase pages that may be fetched repeatedly across runs.
func (c *Client) GetCachedDocument(ctx context.Context, rawURL, phase string) (*goquery.Document, error) {
	if body, ok := c.cache.Get(rawURL); ok {
		return goquery.NewDocumentFromReader(bytes.NewReader(body))
	}
	body, err := c.Get(ctx, rawURL, phase)
	if err != nil {
		return nil, err
	}
	c.cache.Add(rawURL, body)
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (c *Client) doGet(ctx context.Context, rawURL, phase string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Connection", "keep-alive")

	proxy := c.rotator.Next()
	client, err := c.httpClientFor(proxy)
	if err != nil {
		return nil, 0, err
	}

	c.metrics.IncRequest(phase)
	start := time.Now()
	resp, err := client.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		c.rotator.MarkFailed(proxy)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) httpClientFor(proxy string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[proxy]; ok {
		return client, nil
	}

	transport := c.transport
	if transport == nil {
		t := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   c.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		if proxy != "" {
			proxyURL, err := url.Parse(proxy)
			if err != nil {
				return nil, fmt.Errorf("parse proxy url %q: %w", proxy, err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		transport = t
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   c.cfg.Timeout,
	}
	c.clients[proxy] = client
	return client, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// decodeBody reads the response body, undoing gzip/deflate encoding since the
// request sets Accept-Encoding explicitly.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}
	return io.ReadAll(io.LimitReader(reader, maxBodySize))
}
