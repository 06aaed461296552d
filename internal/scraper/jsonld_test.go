// internal/scraper/jsonld_test.go
package scraper

import (
	"context"
	"net/url"
	"testing"

	"github.com/fetchlab/cataloger/pkg/types"
)

func markupPage(t *testing.T, body string) *Page {
	t.Helper()
	pageURL, _ := url.Parse("https://shop.example.com/c/shoes")
	return &Page{URL: pageURL, Body: body, State: &PageState{}}
}

func TestMarkupChannel_SingleProduct(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{
		"@context": "https://schema.org",
		"@type": "Product",
		"name": "Trail Runner",
		"sku": "SKU-1",
		"url": "/p/trail-runner",
		"image": ["/img/a.jpg", "/img/b.jpg"],
		"brand": {"@type": "Brand", "name": "Acme"},
		"color": "Red",
		"material": "Mesh",
		"offers": {
			"@type": "Offer",
			"price": "89.50",
			"priceCurrency": "USD",
			"availability": "https://schema.org/InStock"
		}
	}
	</script></head><body></body></html>`

	ch := &MarkupChannel{}
	candidates, err := ch.Extract(context.Background(), markupPage(t, body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Title != "Trail Runner" || c.ProductID != "SKU-1" || c.Brand != "Acme" {
		t.Errorf("candidate = %+v", c)
	}
	if c.URL != "https://shop.example.com/p/trail-runner" {
		t.Errorf("URL = %q", c.URL)
	}
	if len(c.Images) != 2 || c.Image != "https://shop.example.com/img/a.jpg" {
		t.Errorf("images = %v, primary %q", c.Images, c.Image)
	}
	if c.Price == nil || *c.Price != 89.50 {
		t.Errorf("Price = %v", c.Price)
	}
	if c.Currency != "USD" {
		t.Errorf("Currency = %q", c.Currency)
	}
	if c.InStock != types.StockIn {
		t.Errorf("InStock = %v", c.InStock)
	}
	if c.ColorName != "Red" || len(c.Materials) != 1 {
		t.Errorf("color/material = %q/%v", c.ColorName, c.Materials)
	}
}

func TestMarkupChannel_ItemListAndGraph(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{
		"@context": "https://schema.org",
		"@graph": [
			{"@type": "BreadcrumbList"},
			{
				"@type": "ItemList",
				"itemListElement": [
					{"@type": "ListItem", "item": {"@type": "Product", "name": "A", "url": "/p/a"}},
					{"@type": "ListItem", "item": {"@type": "Product", "name": "B", "url": "/p/b",
						"offers": {"@type": "AggregateOffer", "lowPrice": 59.99, "highPrice": 89.99, "priceCurrency": "EUR"}}}
				]
			}
		]
	}
	</script></head><body></body></html>`

	ch := &MarkupChannel{}
	candidates, err := ch.Extract(context.Background(), markupPage(t, body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	b := candidates[1]
	if b.Price == nil || *b.Price != 59.99 {
		t.Errorf("low price = %v", b.Price)
	}
	if b.OriginalPrice == nil || *b.OriginalPrice != 89.99 {
		t.Errorf("high price = %v", b.OriginalPrice)
	}
	if b.Currency != "EUR" {
		t.Errorf("Currency = %q", b.Currency)
	}
}

func TestMarkupChannel_TypeList(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{"@type": ["Thing", "Product"], "name": "Hybrid", "url": "/p/hybrid",
	 "offers": {"availability": "http://schema.org/OutOfStock"}}
	</script></head></html>`

	ch := &MarkupChannel{}
	candidates, err := ch.Extract(context.Background(), markupPage(t, body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].InStock != types.StockOut {
		t.Errorf("InStock = %v, want out of stock", candidates[0].InStock)
	}
}

func TestMarkupChannel_IgnoresBrokenBlocks(t *testing.T) {
	body := `<html><head>
	<script type="application/ld+json">{ not json</script>
	<script type="application/ld+json">{"@type": "Product", "name": "Survivor", "url": "/p/s"}</script>
	</head></html>`

	ch := &MarkupChannel{}
	candidates, err := ch.Extract(context.Background(), markupPage(t, body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Title != "Survivor" {
		t.Errorf("candidates = %+v", candidates)
	}
}
