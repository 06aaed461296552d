// internal/pipeline/normalize_test.go
package pipeline

import (
	"testing"

	"github.com/fetchlab/cataloger/pkg/types"
)

func float64Ptr(f float64) *float64 { return &f }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"dollar sign", "$49.99", 49.99, true},
		{"currency suffix", "49.99 USD", 49.99, true},
		{"euro comma decimal", "€ 1.299,95", 1299.95, true},
		{"thousands comma", "1,299.95", 1299.95, true},
		{"integer", "120", 120, true},
		{"embedded text", "Now: $89.50 (was $120)", 89.50120, true},
		{"empty", "", 0, false},
		{"no digits", "sold out", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n, err := NewNormalizer("https://shop.example.com", "USD")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	t.Run("price text coercion", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{
			Title:     "  Runner  ",
			URL:       "/p/runner?utm=x",
			PriceText: "$89.50",
		})
		if rec.Title != "Runner" {
			t.Errorf("Title = %q", rec.Title)
		}
		if rec.URL != "https://shop.example.com/p/runner" {
			t.Errorf("URL = %q", rec.URL)
		}
		if rec.Price == nil || *rec.Price != 89.50 {
			t.Errorf("Price = %v, want 89.50", rec.Price)
		}
		if rec.Currency != "USD" {
			t.Errorf("Currency = %q, want USD", rec.Currency)
		}
		if !rec.InStock {
			t.Error("unknown stock should normalize to in stock")
		}
	})

	t.Run("typed price wins over text", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{
			Title:     "Runner",
			URL:       "/p/runner",
			Price:     float64Ptr(75),
			PriceText: "$89.50",
		})
		if rec.Price == nil || *rec.Price != 75 {
			t.Errorf("Price = %v, want 75", rec.Price)
		}
	})

	t.Run("original price must exceed price", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{
			Title:         "Runner",
			URL:           "/p/runner",
			Price:         float64Ptr(120),
			OriginalPrice: float64Ptr(120),
		})
		if rec.OriginalPrice != nil {
			t.Errorf("OriginalPrice = %v, want nil when equal", *rec.OriginalPrice)
		}

		rec = n.Normalize(types.Candidate{
			Title:         "Runner",
			URL:           "/p/runner",
			Price:         float64Ptr(89),
			OriginalPrice: float64Ptr(120),
		})
		if rec.OriginalPrice == nil || *rec.OriginalPrice != 120 {
			t.Errorf("OriginalPrice = %v, want 120", rec.OriginalPrice)
		}
	})

	t.Run("synthesizes URL from product id", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{Title: "Runner", ProductID: "SKU 1"})
		if rec.URL != "https://shop.example.com/p/SKU%201" {
			t.Errorf("URL = %q", rec.URL)
		}
	})

	t.Run("bad currency falls back", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{Title: "Runner", URL: "/p/r", Currency: "dollars"})
		if rec.Currency != "USD" {
			t.Errorf("Currency = %q, want USD fallback", rec.Currency)
		}
	})

	t.Run("explicit out of stock survives", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{Title: "Runner", URL: "/p/r", InStock: types.StockOut})
		if rec.InStock {
			t.Error("explicit out of stock should survive normalization")
		}
	})

	t.Run("deduplicates value lists", func(t *testing.T) {
		rec := n.Normalize(types.Candidate{
			Title:  "Runner",
			URL:    "/p/r",
			Colors: []string{"Red", "red", " Blue ", ""},
		})
		if len(rec.Colors) != 2 || rec.Colors[0] != "Red" || rec.Colors[1] != "Blue" {
			t.Errorf("Colors = %v", rec.Colors)
		}
	})
}

func TestNormalizer_Merge(t *testing.T) {
	n, err := NewNormalizer("https://shop.example.com", "USD")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	base := &types.ProductRecord{
		Title:         "Runner",
		Brand:         "Acme",
		Price:         float64Ptr(89),
		OriginalPrice: float64Ptr(120),
		URL:           "https://shop.example.com/p/runner",
		Colors:        []string{"Red"},
		Sizes:         []string{"M"},
		InStock:       true,
	}

	t.Run("detail scalars override when present", func(t *testing.T) {
		detail := &types.ProductRecord{
			Title:       "Runner Pro",
			Description: "A running shoe.",
			Price:       float64Ptr(95),
			InStock:     false,
			Stock:       types.StockOut,
		}
		merged := n.Merge(base, detail)

		if merged.Title != "Runner Pro" {
			t.Errorf("Title = %q", merged.Title)
		}
		if merged.Brand != "Acme" {
			t.Errorf("Brand = %q, empty detail must not clear it", merged.Brand)
		}
		if merged.Description != "A running shoe." {
			t.Errorf("Description = %q", merged.Description)
		}
		if merged.Price == nil || *merged.Price != 95 {
			t.Errorf("Price = %v", merged.Price)
		}
		// Listing original price 120 is no longer valid against the new
		// detail price unless the detail provided its own.
		if merged.OriginalPrice != nil {
			t.Errorf("OriginalPrice = %v, want revalidated to nil", *merged.OriginalPrice)
		}
		if merged.InStock {
			t.Error("detail stock signal must override")
		}
	})

	t.Run("unknown detail stock keeps listing availability", func(t *testing.T) {
		soldOut := *base
		soldOut.InStock = false
		soldOut.Stock = types.StockOut

		// A detail page without availability markup collapses to in-stock,
		// but its signal is unknown and must not flip the listing's.
		detail := &types.ProductRecord{
			Description: "A running shoe.",
			InStock:     true,
			Stock:       types.StockUnknown,
		}
		merged := n.Merge(&soldOut, detail)

		if merged.InStock {
			t.Error("signal-less detail page must not flip out-of-stock to available")
		}
		if merged.Stock != types.StockOut {
			t.Errorf("Stock = %v, want the listing signal kept", merged.Stock)
		}
		if merged.Description != "A running shoe." {
			t.Errorf("Description = %q, rest of the merge must still apply", merged.Description)
		}
	})

	t.Run("known detail stock overrides", func(t *testing.T) {
		detail := &types.ProductRecord{InStock: false, Stock: types.StockOut}
		merged := n.Merge(base, detail)
		if merged.InStock {
			t.Error("known out-of-stock detail signal must override")
		}
	})

	t.Run("detail arrays replace outright", func(t *testing.T) {
		detail := &types.ProductRecord{
			Colors: []string{"Black", "White"},
		}
		merged := n.Merge(base, detail)

		if len(merged.Colors) != 2 || merged.Colors[0] != "Black" {
			t.Errorf("Colors = %v, want detail set", merged.Colors)
		}
		if len(merged.Sizes) != 1 || merged.Sizes[0] != "M" {
			t.Errorf("Sizes = %v, empty detail set must not replace", merged.Sizes)
		}
	})

	t.Run("nil handling", func(t *testing.T) {
		if got := n.Merge(nil, base); got != base {
			t.Error("nil base should return detail")
		}
		if got := n.Merge(base, nil); got != base {
			t.Error("nil detail should return base")
		}
	})

	t.Run("base is not mutated", func(t *testing.T) {
		before := *base
		n.Merge(base, &types.ProductRecord{Title: "Other"})
		if base.Title != before.Title {
			t.Error("merge must not mutate the base record")
		}
	})
}
