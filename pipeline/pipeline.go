// Package pipeline cleans, deduplicates, and writes scraped records. It is a
// downstream consumer of the engine's output, not part of the crawl core.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-engine/models"
	"github.com/aluiziolira/go-scrape-engine/parser"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, cleaning, de-duplication, and output
// writing for scraped records.
type Pipeline struct {
	writer    OutputWriter
	recordCh  chan models.Record
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	metrics *counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:    writer,
		recordCh:  make(chan models.Record, 512),
		batchSize: 64,
		seen:      make(map[string]struct{}),
		metrics:   newCounters(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues records for downstream processing.
func (p *Pipeline) Process(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, record := range records {
		if record == nil {
			continue
		}
		if err := p.enqueue(record); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recordCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_records"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("validation_error_kinds", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]models.Record, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for record := range p.recordCh {
		prepared := p.prepare(record)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// prepare validates, cleans, and deduplicates one record. Cleaning reuses the
// canonical parsing rules from the parser package; nothing is duplicated here.
func (p *Pipeline) prepare(record models.Record) models.Record {
	if err := record.Validate(); err != nil {
		p.metrics.addValidation("invalid_record")
		return nil
	}
	if !validURL(record.URL()) {
		p.metrics.addValidation("invalid_url")
		return nil
	}

	key := record.Name() + "\x00" + record.URL()
	p.seenMu.Lock()
	if _, ok := p.seen[key]; ok {
		p.seenMu.Unlock()
		p.metrics.addValidation("duplicate")
		return nil
	}
	p.seen[key] = struct{}{}
	p.seenMu.Unlock()

	normalize(record)

	p.metrics.incrementProcessed()
	return record
}

// normalize coerces string-typed price/rating fields to numbers and cleans
// text fields in place.
func normalize(record models.Record) {
	if raw, ok := record["price"].(string); ok {
		if price, parsed := parser.ParsePrice(raw); parsed {
			record["price_original"] = raw
			record["price"] = price
			record["currency"] = parser.Currency(raw)
		} else {
			record["price"] = nil
		}
	}
	if raw, ok := record["rating"].(string); ok {
		if rating, parsed := parser.ParseRating(raw); parsed {
			record["rating_original"] = raw
			record["rating"] = rating
		} else {
			record["rating"] = nil
		}
	}
	for key, value := range record {
		if text, ok := value.(string); ok {
			record[key] = parser.CleanText(text)
		}
	}
}

func validURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func (p *Pipeline) enqueue(record models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.recordCh <- record:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recordCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type counters struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newCounters() *counters {
	return &counters{
		validation: make(map[string]int),
	}
}

func (c *counters) incrementProcessed() {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
}

func (c *counters) addValidation(kind string) {
	c.mu.Lock()
	c.validation[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	copyValidation := make(map[string]int, len(c.validation))
	for k, v := range c.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": c.processed,
		"validation_errors": copyValidation,
	}
}
