// internal/output/excel.go
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/fetchlab/cataloger/pkg/types"
)

const excelSheet = "Products"

// ExcelWriter accumulates rows in an xlsx workbook and saves it on Close.
// An existing workbook is extended below its last row.
type ExcelWriter struct {
	mu      sync.Mutex
	file    *excelize.File
	path    string
	nextRow int
	closed  bool
}

// NewExcelWriter opens (or creates) the workbook at path.
func NewExcelWriter(path string) (*ExcelWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("excel output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	w := &ExcelWriter{path: path}

	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		w.file = f
		if idx, err := f.GetSheetIndex(excelSheet); err != nil || idx < 0 {
			if _, err := f.NewSheet(excelSheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to create sheet: %w", err)
			}
		}
		rows, err := f.GetRows(excelSheet)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read sheet: %w", err)
		}
		w.nextRow = len(rows) + 1
		if len(rows) == 0 {
			if err := w.writeHeader(); err != nil {
				f.Close()
				return nil, err
			}
		}
		return w, nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), excelSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	w.file = f
	w.nextRow = 1
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *ExcelWriter) writeHeader() error {
	header := make([]interface{}, len(recordColumns))
	for i, col := range recordColumns {
		header[i] = col
	}
	if err := w.file.SetSheetRow(excelSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	w.nextRow = 2
	return nil
}

// Append adds one row per record.
func (w *ExcelWriter) Append(records []*types.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("excel writer is closed")
	}

	for _, rec := range records {
		values := recordStrings(rec)
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, w.nextRow)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", w.nextRow, err)
		}
		if err := w.file.SetSheetRow(excelSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", w.nextRow, err)
		}
		w.nextRow++
	}
	return nil
}

// Close saves the workbook to disk.
func (w *ExcelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.SaveAs(w.path); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return w.file.Close()
}
