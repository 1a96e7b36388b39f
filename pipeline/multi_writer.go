package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-engine/models"
)

// MultiWriter fans records out to several writers. Writes stop at the first
// failing writer; Close and Validate visit every writer and join the errors.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter wraps the given writers into one OutputWriter.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter builds the common CSV+JSON combination.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, err
	}
	return NewMultiWriter(csvWriter, jsonWriter), nil
}

// Write forwards records to every writer.
func (mw *MultiWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, writer := range mw.writers {
		if err := writer.Write(records); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer, collecting all errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, writer := range mw.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output, collecting all errors.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, writer := range mw.writers {
		if err := writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
