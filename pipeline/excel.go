package pipeline

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-engine/models"
)

const (
	dataSheet     = "Records"
	metadataSheet = "Metadata"
)

// XLSXWriter buffers records and writes an Excel workbook on Close: a data
// sheet with a styled header row plus a metadata sheet.
type XLSXWriter struct {
	path    string
	records []models.Record
	closed  bool
	mu      sync.Mutex
}

// NewXLSXWriter initialises the Excel writer.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &XLSXWriter{path: filename}, nil
}

// Write buffers records for the final workbook.
func (xw *XLSXWriter) Write(records []models.Record) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.closed {
		return fmt.Errorf("xlsx writer already closed")
	}
	xw.records = append(xw.records, records...)
	return nil
}

// Close writes the workbook and releases the buffer.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.closed {
		return nil
	}
	xw.closed = true

	book := excelize.NewFile()
	defer book.Close()

	sheet, err := book.NewSheet(dataSheet)
	if err != nil {
		return fmt.Errorf("create data sheet: %w", err)
	}
	book.SetActiveSheet(sheet)
	if err := book.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	columns := columnsFor(xw.records)
	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	if err := book.SetSheetRow(dataSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	if style, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
	}); err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		book.SetCellStyle(dataSheet, "A1", endCell, style)
	}

	for i, record := range xw.records {
		row := make([]any, len(columns))
		for j, column := range columns {
			row[j] = record[column]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := book.SetSheetRow(dataSheet, cell, &row); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
	}

	if err := xw.writeMetadata(book); err != nil {
		return err
	}

	if err := book.SaveAs(xw.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	xw.records = nil
	return nil
}

func (xw *XLSXWriter) writeMetadata(book *excelize.File) error {
	if _, err := book.NewSheet(metadataSheet); err != nil {
		return fmt.Errorf("create metadata sheet: %w", err)
	}
	rows := [][]any{
		{"exported_at", time.Now().UTC().Format(time.RFC3339)},
		{"record_count", len(xw.records)},
		{"generator", "go-scrape-engine"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := book.SetSheetRow(metadataSheet, cell, &row); err != nil {
			return fmt.Errorf("write metadata row: %w", err)
		}
	}
	return nil
}

// Validate ensures the workbook exists with data. Valid only after Close.
func (xw *XLSXWriter) Validate() error {
	info, err := os.Stat(xw.path)
	if err != nil {
		return fmt.Errorf("stat xlsx file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("xlsx file is empty")
	}
	return nil
}
