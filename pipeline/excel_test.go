package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-engine/models"
)

func TestXLSXWriterWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("new xlsx writer: %v", err)
	}

	if err := writer.Write([]models.Record{
		{"name": "Book A", "url": "http://example.com/a", "price": 10.5},
		{"name": "Book B", "url": "http://example.com/b", "price": 12.0},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows("Records")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 records", len(rows))
	}
	if rows[0][0] != "name" || rows[0][1] != "price" || rows[0][2] != "url" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "Book A" {
		t.Fatalf("first record row = %v", rows[1])
	}

	if index, err := book.GetSheetIndex("Metadata"); err != nil || index < 0 {
		t.Fatalf("metadata sheet missing (index %d, err %v)", index, err)
	}
	generator, err := book.GetCellValue("Metadata", "A3")
	if err != nil || generator != "generator" {
		t.Fatalf("metadata A3 = %q (%v)", generator, err)
	}
}

func TestXLSXWriterRejectsWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("new xlsx writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Write([]models.Record{{"name": "x", "url": "u"}}); err == nil {
		t.Fatal("expected error writing after close")
	}
}
