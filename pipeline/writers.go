package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-engine/models"
)

// priorityColumns lead the output column order; remaining fields follow
// alphabetically. Field sets vary per site, so columns are discovered from
// the first batch of records.
var priorityColumns = []string{"name", "price", "rating", "url", "category"}

func columnsFor(records []models.Record) []string {
	present := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			present[key] = struct{}{}
		}
	}

	var columns []string
	for _, column := range priorityColumns {
		if _, ok := present[column]; ok {
			columns = append(columns, column)
			delete(present, column)
		}
	}
	rest := make([]string, 0, len(present))
	for key := range present {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CSVWriter streams records to CSV. The header row is derived from the first
// batch.
type CSVWriter struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	columns []string
	mu      sync.Mutex
}

// NewCSVWriter initialises a CSV writer.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: csv.NewWriter(f),
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.columns == nil {
		cw.columns = columnsFor(records)
		if err := cw.writer.Write(cw.columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	row := make([]string, len(cw.columns))
	for _, record := range records {
		for i, column := range cw.columns {
			row[i] = formatValue(record[column])
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the output file has content.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.path)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// exportMetadata is the header object written ahead of the records in
// document-style exports.
type exportMetadata struct {
	ExportedAt  time.Time `json:"exported_at"`
	RecordCount int       `json:"record_count"`
	Generator   string    `json:"generator"`
}

// JSONWriter buffers records and writes a single JSON document with a
// metadata header on Close.
type JSONWriter struct {
	path    string
	records []models.Record
	closed  bool
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{path: filename}, nil
}

// Write buffers records for the final document.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return fmt.Errorf("json writer already closed")
	}
	jw.records = append(jw.records, records...)
	return nil
}

// Close writes the document and releases the buffer.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return nil
	}
	jw.closed = true

	document := struct {
		Metadata exportMetadata  `json:"metadata"`
		Records  []models.Record `json:"records"`
	}{
		Metadata: exportMetadata{
			ExportedAt:  time.Now().UTC(),
			RecordCount: len(jw.records),
			Generator:   "go-scrape-engine",
		},
		Records: jw.records,
	}

	f, err := os.Create(jw.path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(document); err != nil {
		f.Close()
		return fmt.Errorf("encode json document: %w", err)
	}
	jw.records = nil
	return f.Close()
}

// Validate ensures the JSON file has data. Valid only after Close.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.path)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
