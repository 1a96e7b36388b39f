package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-engine/config"
	"github.com/aluiziolira/go-scrape-engine/models"
)

// ProgressFunc receives progress updates, invoked synchronously from the
// scraping goroutine before each fetch. Callers marshal to their own event
// loop if needed.
type ProgressFunc func(current, total int, status string)

// Options carries the optional per-run collaborators.
type Options struct {
	Progress ProgressFunc
	// Stop is polled before each page and each item; returning true stops
	// the run cooperatively. Context cancellation stops the run as well.
	Stop func() bool
}

// Engine drives scrape runs: it owns the HTTP client, rate limiter, proxy
// rotator, and adapter registry, all shared across sequential runs. One run
// at a time; a second concurrent Scrape call is rejected.
type Engine struct {
	cfg      *config.Config
	client   *Client
	metrics  *Metrics
	adapters map[string]Adapter
	running  atomic.Bool
}

// NewEngine builds an engine from cfg with the given site adapters.
func NewEngine(cfg *config.Config, adapters []Adapter) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ConfigError{Err: err}
	}
	if len(adapters) == 0 {
		return nil, ConfigError{Err: fmt.Errorf("no site adapters registered")}
	}

	metrics := NewMetrics()
	limiter := NewRateLimiter(cfg.MinDelay, cfg.MaxDelay, cfg.RequestsPerMinute)
	rotator := NewProxyRotator(cfg.Proxies)
	client, err := NewClient(cfg, limiter, rotator, metrics)
	if err != nil {
		return nil, err
	}

	registry := make(map[string]Adapter, len(adapters))
	for _, adapter := range adapters {
		registry[strings.ToLower(adapter.Info().Name)] = adapter
	}

	return &Engine{
		cfg:      cfg,
		client:   client,
		metrics:  metrics,
		adapters: registry,
	}, nil
}

// Client exposes the engine's HTTP client, mainly so tests can install a mock
// transport.
func (e *Engine) Client() *Client {
	return e.client
}

// Metrics exposes the engine's Prometheus collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Sites lists the registered site names, sorted.
func (e *Engine) Sites() []string {
	names := make([]string, 0, len(e.adapters))
	for _, adapter := range e.adapters {
		names = append(names, adapter.Info().Name)
	}
	sort.Strings(names)
	return names
}

// Scrape runs one crawl of the named site. Partial results are returned as
// data: a degraded or cancelled run yields the records collected so far with
// a nil error. Only failures that prevent starting at all (unknown site,
// invalid run config, unreachable first page) surface as errors.
func (e *Engine) Scrape(ctx context.Context, site string, run models.RunConfig, opts Options) (*models.ScrapeResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ConfigError{Err: fmt.Errorf("a scrape is already in progress")}
	}
	defer e.running.Store(false)

	adapter, ok := e.adapters[strings.ToLower(site)]
	if !ok {
		cfgErr := ConfigError{Err: fmt.Errorf("unknown site %q", site)}
		e.metrics.IncError(errorTypeLabel(cfgErr))
		return nil, cfgErr
	}
	if err := run.Validate(); err != nil {
		cfgErr := ConfigError{Err: err}
		e.metrics.IncError(errorTypeLabel(cfgErr))
		return nil, cfgErr
	}

	info := adapter.Info()
	progress := opts.Progress
	if progress == nil {
		progress = func(int, int, string) {}
	}
	stop := func() bool {
		return ctx.Err() != nil || (opts.Stop != nil && opts.Stop())
	}

	slog.Info("starting scrape",
		slog.String("site", info.Name),
		slog.Int("max_items", run.MaxItems),
		slog.String("filter", run.CategoryFilter),
	)

	stats := newStats()
	stats.Start()

	startURL := e.resolveStart(ctx, adapter, run.CategoryFilter, stats)

	var records []models.Record
	var err error
	if adapter.RecordsInListing() {
		records, err = e.scrapeListings(ctx, adapter, startURL, run, stats, progress, stop)
	} else {
		records, err = e.scrapeItems(ctx, adapter, startURL, run, stats, progress, stop)
	}
	stats.End()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		slog.Warn("no data scraped", slog.String("site", info.Name))
	}
	snapshot := stats.Snapshot()
	slog.Info("scrape finished",
		slog.String("site", info.Name),
		slog.Int("records", len(records)),
		slog.Int("requests", snapshot.TotalRequests),
		slog.Int("failed_requests", snapshot.FailedRequests),
	)

	return &models.ScrapeResult{Site: info, Records: records, Stats: snapshot}, nil
}

// resolveStart maps the category filter onto a filtered listing URL using the
// site's front page. Failure to resolve is never fatal: the run continues
// from the base URL.
func (e *Engine) resolveStart(ctx context.Context, adapter Adapter, filter string, stats *Stats) string {
	base := adapter.Info().BaseURL
	if filter == "" {
		return base
	}

	front, err := e.client.GetCachedDocument(ctx, base, "resolve")
	if err != nil {
		resolveErr := ResolveError{Filter: filter, Err: err}
		stats.AddRequest(false, resolveErr)
		e.metrics.IncError(errorTypeLabel(resolveErr))
		slog.Warn("category filter resolution failed, using base URL",
			slog.String("filter", filter),
			slog.Any("error", err),
		)
		return base
	}
	stats.AddRequest(true, nil)

	if resolved := adapter.ResolveStart(front, filter); resolved != "" {
		slog.Info("resolved category filter",
			slog.String("filter", filter),
			slog.String("url", resolved),
		)
		return resolved
	}
	slog.Warn("no category matched filter, using base URL", slog.String("filter", filter))
	return base
}

// scrapeItems is the paged-detail path: collect item links across listing
// pages up to the quota, then fetch and parse each item.
func (e *Engine) scrapeItems(ctx context.Context, adapter Adapter, startURL string, run models.RunConfig, stats *Stats, progress ProgressFunc, stop func() bool) ([]models.Record, error) {
	progress(0, run.MaxItems, "Collecting item links")

	links, err := e.collectLinks(ctx, adapter, startURL, run.MaxItems, stats, stop)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []models.Record{}, nil
	}
	slog.Info("collected item links", slog.Int("links", len(links)))

	records := make([]models.Record, 0, len(links))
	total := len(links)
	for i, link := range links {
		if stop() {
			slog.Info("scrape stopped by caller", slog.Int("scraped", len(records)))
			break
		}
		progress(i, total, fmt.Sprintf("Scraping item %d/%d", i+1, total))

		record, err := e.fetchItem(ctx, adapter, link)
		if err != nil {
			stats.AddRequest(false, err)
			slog.Error("item failed, skipping",
				slog.String("url", link),
				slog.Any("error", err),
			)
			continue
		}
		stats.AddRequest(true, nil)
		records = append(records, record)
		stats.AddItem()
		e.metrics.IncItems()

		if i < total-1 && run.PerItemDelay > 0 {
			if err := sleepContext(ctx, run.PerItemDelay); err != nil {
				break
			}
		}
	}

	progress(len(records), total, "Scraping completed")
	return records, nil
}

// collectLinks walks listing pages until the quota is met or pages run out.
// A page failure after the first page breaks the loop; already-collected
// links are still processed by the caller.
func (e *Engine) collectLinks(ctx context.Context, adapter Adapter, startURL string, maxItems int, stats *Stats, stop func() bool) ([]string, error) {
	var links []string
	pageURL := startURL
	page := 1

	for len(links) < maxItems && pageURL != "" && !stop() {
		doc, err := e.client.GetDocument(ctx, pageURL, "listing")
		if err != nil {
			fetchErr := PageFetchError{URL: pageURL, Err: err}
			stats.AddRequest(false, fetchErr)
			e.metrics.IncError(errorTypeLabel(fetchErr))
			if page == 1 && len(links) == 0 {
				// Nothing collected and the run cannot start.
				return nil, fetchErr
			}
			slog.Error("listing page failed, stopping pagination",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			break
		}
		stats.AddRequest(true, nil)

		pageLinks := adapter.ItemLinks(doc, pageURL, maxItems-len(links))
		if len(pageLinks) == 0 {
			break
		}
		links = append(links, pageLinks...)
		slog.Debug("collected links from page",
			slog.Int("page", page),
			slog.Int("links", len(pageLinks)),
		)

		pageURL = adapter.NextPage(doc, pageURL)
		if pageURL == "" || len(links) >= maxItems {
			break
		}
		if err := sleepContext(ctx, e.cfg.PageDelay); err != nil {
			break
		}
		page++
	}

	if len(links) > maxItems {
		links = links[:maxItems]
	}
	return links, nil
}

func (e *Engine) fetchItem(ctx context.Context, adapter Adapter, link string) (models.Record, error) {
	doc, err := e.client.GetDocument(ctx, link, "detail")
	if err != nil {
		return nil, err
	}
	records, err := adapter.ParseRecords(doc, link)
	if err != nil {
		parseErr := ItemParseError{URL: link, Err: err}
		e.metrics.IncError(errorTypeLabel(parseErr))
		return nil, parseErr
	}
	if len(records) == 0 {
		parseErr := ItemParseError{URL: link, Err: fmt.Errorf("no record on page")}
		e.metrics.IncError(errorTypeLabel(parseErr))
		return nil, parseErr
	}
	return records[0], nil
}

// scrapeListings is the flat-listing path: listing pages themselves are
// parsed into records, no per-item fetch. Quota, cancellation, and politeness
// semantics match the paged-detail path.
func (e *Engine) scrapeListings(ctx context.Context, adapter Adapter, startURL string, run models.RunConfig, stats *Stats, progress ProgressFunc, stop func() bool) ([]models.Record, error) {
	var records []models.Record
	pageURL := startURL
	page := 1

	for len(records) < run.MaxItems && pageURL != "" && !stop() {
		progress(len(records), run.MaxItems, fmt.Sprintf("Scraping listing page %d", page))

		doc, err := e.client.GetDocument(ctx, pageURL, "listing")
		if err != nil {
			fetchErr := PageFetchError{URL: pageURL, Err: err}
			stats.AddRequest(false, fetchErr)
			e.metrics.IncError(errorTypeLabel(fetchErr))
			if page == 1 && len(records) == 0 {
				return nil, fetchErr
			}
			slog.Error("listing page failed, stopping pagination",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			break
		}
		stats.AddRequest(true, nil)

		pageRecords, err := adapter.ParseRecords(doc, pageURL)
		if err != nil {
			parseErr := ItemParseError{URL: pageURL, Err: err}
			e.metrics.IncError(errorTypeLabel(parseErr))
			slog.Error("listing parse failed, skipping page",
				slog.String("url", pageURL),
				slog.Any("error", parseErr),
			)
		}
		for _, record := range pageRecords {
			if len(records) >= run.MaxItems {
				break
			}
			records = append(records, record)
			stats.AddItem()
			e.metrics.IncItems()
		}

		pageURL = adapter.NextPage(doc, pageURL)
		if pageURL == "" || len(records) >= run.MaxItems {
			break
		}
		if run.PerItemDelay > 0 {
			if err := sleepContext(ctx, run.PerItemDelay); err != nil {
				break
			}
		}
		page++
	}

	progress(len(records), run.MaxItems, "Scraping completed")
	return records, nil
}
