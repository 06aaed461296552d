// internal/output/output_test.go
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fetchlab/cataloger/internal/config"
	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

func sampleRecords() []*types.ProductRecord {
	price := 89.5
	list := 120.0
	return []*types.ProductRecord{
		{
			Title:         "Trail Runner",
			Brand:         "Acme",
			Price:         &price,
			OriginalPrice: &list,
			Currency:      "USD",
			URL:           "https://shop.example.com/p/trail-runner",
			ProductID:     "SKU-1",
			Colors:        []string{"Red", "Black"},
			Sizes:         []string{"M", "L"},
			InStock:       true,
			Channel:       "state",
			ScrapedAt:     time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		},
		{
			Title:     "Road Runner",
			URL:       "https://shop.example.com/p/road-runner",
			ProductID: "SKU-2",
			InStock:   false,
			ScrapedAt: time.Date(2026, 8, 25, 12, 0, 1, 0, time.UTC),
		},
	}
}

func TestJSONLWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	w, err := NewJSONLWriter(path)
	if err != nil {
		t.Fatalf("NewJSONLWriter: %v", err)
	}
	if err := w.Append(sampleRecords()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening appends instead of truncating.
	w, err = NewJSONLWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.Append(sampleRecords()[:1]); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec types.ProductRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		if rec.Title == "" || rec.URL == "" {
			t.Errorf("line %d missing required fields: %+v", lines+1, rec)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.Append(sampleRecords()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(rows))
	}
	if rows[0][0] != "identity_key" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "id:SKU-1" {
		t.Errorf("first identity key = %q", rows[1][0])
	}
	if len(rows[1]) != len(recordColumns) {
		t.Errorf("columns = %d, want %d", len(rows[1]), len(recordColumns))
	}
}

func TestCSVWriter_AppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	for i := 0; i < 2; i++ {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := w.Append(sampleRecords()[:1]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want one header and two records", len(rows))
	}
}

func TestExcelWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.xlsx")

	w, err := NewExcelWriter(path)
	if err != nil {
		t.Fatalf("NewExcelWriter: %v", err)
	}
	if err := w.Append(sampleRecords()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("workbook not written: %v", err)
	}

	// Reopen and extend below the existing rows.
	w, err = NewExcelWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w.nextRow != 4 {
		t.Errorf("nextRow = %d, want 4 after header and two rows", w.nextRow)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewSink_Dispatch(t *testing.T) {
	dir := t.TempDir()
	log := utils.NewLogger()

	tests := []struct {
		name    string
		cfg     config.OutputConfig
		wantErr bool
	}{
		{"jsonl", config.OutputConfig{Format: "jsonl", Path: filepath.Join(dir, "a.jsonl")}, false},
		{"csv", config.OutputConfig{Format: "csv", Path: filepath.Join(dir, "a.csv")}, false},
		{"sqlite", config.OutputConfig{Format: "sqlite", Path: filepath.Join(dir, "a.db"), Table: "products"}, false},
		{"unsupported", config.OutputConfig{Format: "parquet"}, true},
		{"missing path", config.OutputConfig{Format: "jsonl"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSink(&tt.cfg, log)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSink: %v", err)
			}
			if err := sink.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestSQLiteWriter_IgnoresDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.db")

	sink, err := NewSQLiteWriter(path, "products")
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer sink.Close()

	recs := sampleRecords()
	if err := sink.Append(recs); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	// Appending the same identities again is a no-op, not an error.
	if err := sink.Append(recs); err != nil {
		t.Fatalf("duplicate Append: %v", err)
	}

	w := sink.(*sqlWriter)
	var count int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}
}
