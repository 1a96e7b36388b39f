package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-engine/config"
	"github.com/aluiziolira/go-scrape-engine/models"
	"github.com/aluiziolira/go-scrape-engine/pipeline"
	"github.com/aluiziolira/go-scrape-engine/scraper"
	"github.com/aluiziolira/go-scrape-engine/sites"
)

func main() {
	defaultCfg := config.DefaultConfig()

	maxItemsDefault := 50
	if value, ok, err := config.EnvInt("SCRAPER_MAX_ITEMS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_ITEMS: %v\n", err)
		os.Exit(1)
	} else if ok {
		maxItemsDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	site := flag.String("site", "Books to Scrape", "Site to scrape (see -list-sites)")
	listSites := flag.Bool("list-sites", false, "List available sites and exit")
	maxItems := flag.Int("max-items", maxItemsDefault, "Maximum items to scrape")
	itemDelay := flag.Duration("item-delay", time.Second, "Delay between item fetches")
	category := flag.String("category", "", "Category/tag filter (substring match)")
	rpm := flag.Int("rpm", defaultCfg.RequestsPerMinute, "Maximum requests per minute")
	minDelay := flag.Duration("min-delay", defaultCfg.MinDelay, "Jitter floor between requests")
	maxDelay := flag.Duration("max-delay", defaultCfg.MaxDelay, "Jitter ceiling between requests")
	pageDelay := flag.Duration("page-delay", defaultCfg.PageDelay, "Delay between listing pages")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "HTTP request timeout")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per request")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	proxies := flag.String("proxies", "", "Comma-separated proxy URLs")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, xlsx, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, _ := newLogger(*verbose)
	slog.SetDefault(logger)

	cfg := defaultCfg
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.RequestsPerMinute = *rpm
	cfg.MinDelay = *minDelay
	cfg.MaxDelay = *maxDelay
	cfg.PageDelay = *pageDelay
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *proxies != "" {
		for _, proxy := range strings.Split(*proxies, ",") {
			if proxy = strings.TrimSpace(proxy); proxy != "" {
				cfg.Proxies = append(cfg.Proxies, proxy)
			}
		}
	}

	engine, err := scraper.NewEngine(cfg, sites.All())
	if err != nil {
		slog.Error("initialising engine", slog.Any("error", err))
		os.Exit(1)
	}

	if *listSites {
		for _, name := range engine.Sites() {
			fmt.Println(name)
		}
		return
	}

	run := models.RunConfig{
		MaxItems:       *maxItems,
		PerItemDelay:   *itemDelay,
		CategoryFilter: *category,
	}
	if err := run.Validate(); err != nil {
		slog.Error("invalid run parameters", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight work")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(engine.Metrics().Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	progress := func(current, total int, status string) {
		slog.Info("progress",
			slog.Int("current", current),
			slog.Int("total", total),
			slog.String("status", status),
		)
	}

	result, err := engine.Scrape(ctx, *site, run, scraper.Options{Progress: progress})
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Process(result.Records); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("pipeline process failed", slog.Any("error", err))
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, p.GetMetrics(), cfg.OutputFile)
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "xlsx":
		return pipeline.NewXLSXWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScrapeResult, metrics map[string]interface{}, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Scrape complete: %s\n", result.Site.Name)

	processed := int64(0)
	if value, ok := metrics["processed_records"].(int64); ok {
		processed = value
	}

	stats := result.Stats
	fmt.Printf("  Records:       %d scraped, %d exported\n", len(result.Records), processed)
	fmt.Printf("  Requests:      %d (%.1f%% success)\n", stats.TotalRequests, stats.SuccessRate())
	fmt.Printf("  Failures:      %d\n", stats.FailedRequests)
	fmt.Printf("  Rate:          %.1f items/minute\n", stats.ItemsPerMinute())
	fmt.Printf("  Duration:      %v\n", stats.Duration().Round(time.Millisecond))
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	if len(stats.Errors) > 0 {
		fmt.Printf("  Errors:        %d (first: %s)\n", len(stats.Errors), stats.Errors[0])
	}
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
