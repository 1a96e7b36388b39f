package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-engine/models"
)

// collectingWriter buffers everything for assertions.
type collectingWriter struct {
	mu       sync.Mutex
	records  []models.Record
	closed   bool
	writeErr error
}

func (w *collectingWriter) Write(records []models.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.records = append(w.records, append([]models.Record(nil), records...)...)
	return nil
}

func (w *collectingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *collectingWriter) Validate() error { return nil }

func (w *collectingWriter) snapshot() []models.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Record(nil), w.records...)
}

func record(name, url string, extra models.Record) models.Record {
	r := models.Record{"name": name, "url": url}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func runPipeline(t *testing.T, writer OutputWriter, records []models.Record) *Pipeline {
	t.Helper()
	p := NewPipeline(writer)
	p.Start(2)
	if err := p.Process(records); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return p
}

func TestPipelineDeduplicates(t *testing.T) {
	writer := &collectingWriter{}
	p := runPipeline(t, writer, []models.Record{
		record("Book A", "http://example.com/a", nil),
		record("Book A", "http://example.com/a", nil),
		record("Book A", "http://example.com/b", nil), // same name, different URL: kept
		record("Book B", "http://example.com/a", nil), // same URL, different name: kept
	})

	if got := len(writer.snapshot()); got != 3 {
		t.Fatalf("written records = %d, want 3", got)
	}

	metrics := p.GetMetrics()
	if got := metrics["processed_records"].(int64); got != 3 {
		t.Errorf("processed = %d, want 3", got)
	}
	validation := metrics["validation_errors"].(map[string]int)
	if validation["duplicate"] != 1 {
		t.Errorf("duplicates = %d, want 1", validation["duplicate"])
	}
}

func TestPipelineDropsInvalidRecords(t *testing.T) {
	writer := &collectingWriter{}
	p := runPipeline(t, writer, []models.Record{
		record("", "http://example.com/a", nil),           // missing name
		record("No URL", "", nil),                         // missing url
		record("Bad URL", "not-a-url", nil),               // unparsable url
		record("FTP", "ftp://example.com/a", nil),         // wrong scheme
		record("Good", "http://example.com/good", nil),
	})

	written := writer.snapshot()
	if len(written) != 1 || written[0].Name() != "Good" {
		t.Fatalf("written = %+v, want only the good record", written)
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["invalid_record"] != 2 {
		t.Errorf("invalid_record = %d, want 2", validation["invalid_record"])
	}
	if validation["invalid_url"] != 2 {
		t.Errorf("invalid_url = %d, want 2", validation["invalid_url"])
	}
}

func TestPipelineNormalizesStringFields(t *testing.T) {
	writer := &collectingWriter{}
	runPipeline(t, writer, []models.Record{
		record("  Spaced   Name  ", "http://example.com/a", models.Record{
			"price":  "£51.77",
			"rating": "4.5 out of 5",
		}),
	})

	written := writer.snapshot()
	if len(written) != 1 {
		t.Fatalf("written = %d records, want 1", len(written))
	}
	got := written[0]

	if price, ok := got.Float("price"); !ok || price != 51.77 {
		t.Errorf("price = %v (%v), want 51.77", price, ok)
	}
	if got.String("price_original") != "£51.77" {
		t.Errorf("price_original = %q", got.String("price_original"))
	}
	if got.String("currency") != "GBP" {
		t.Errorf("currency = %q", got.String("currency"))
	}
	if rating, ok := got.Float("rating"); !ok || rating != 4.5 {
		t.Errorf("rating = %v (%v), want 4.5", rating, ok)
	}
	if got.Name() != "Spaced Name" {
		t.Errorf("name = %q, want collapsed whitespace", got.Name())
	}
}

func TestPipelineUnparsablePriceBecomesNil(t *testing.T) {
	writer := &collectingWriter{}
	runPipeline(t, writer, []models.Record{
		record("Book", "http://example.com/a", models.Record{
			"price":  "call for price",
			"rating": "no rating",
		}),
	})

	got := writer.snapshot()[0]
	if got["price"] != nil {
		t.Errorf("price = %v, want nil", got["price"])
	}
	if got["rating"] != nil {
		t.Errorf("rating = %v, want nil", got["rating"])
	}
}

func TestPipelineNumericFieldsPassThrough(t *testing.T) {
	writer := &collectingWriter{}
	runPipeline(t, writer, []models.Record{
		record("Book", "http://example.com/a", models.Record{
			"price":  19.99,
			"rating": 4.0,
		}),
	})

	got := writer.snapshot()[0]
	if price, ok := got.Float("price"); !ok || price != 19.99 {
		t.Errorf("price = %v (%v)", price, ok)
	}
	if _, exists := got["price_original"]; exists {
		t.Error("numeric price should not gain price_original")
	}
}

func TestPipelineRejectsAfterClose(t *testing.T) {
	p := NewPipeline(&collectingWriter{})
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := p.Process([]models.Record{record("Book", "http://example.com/a", nil)})
	if !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineSurfacesWriterError(t *testing.T) {
	writer := &collectingWriter{writeErr: errors.New("disk full")}
	p := NewPipeline(writer)
	p.Start(1)
	p.Process([]models.Record{record("Book", "http://example.com/a", nil)})

	if err := p.Close(); err == nil {
		t.Fatal("expected writer error to surface at close")
	}
}
