// internal/scraper/tiles_test.go
package scraper

import (
	"context"
	"net/url"
	"testing"
)

func tilePage(body string) *Page {
	pageURL, _ := url.Parse("https://shop.example.com/c/shoes")
	return &Page{URL: pageURL, Body: body, State: &PageState{}}
}

func TestTileChannel_DataAttributePayload(t *testing.T) {
	body := `<html><body>
	<div data-gtm-product='{"id":"SKU-1","name":"Trail Runner","price":89.5,"brand":"Acme","url":"/p/trail-runner"}'>
		<a href="/p/trail-runner"><img src="/img/trail.jpg" alt="Trail Runner"></a>
	</div>
	</body></html>`

	ch := &TileChannel{}
	candidates, err := ch.Extract(context.Background(), tilePage(body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 after intra-page merge", len(candidates))
	}

	c := candidates[0]
	if c.Title != "Trail Runner" || c.ProductID != "SKU-1" || c.Brand != "Acme" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Price == nil || *c.Price != 89.5 {
		t.Errorf("Price = %v", c.Price)
	}
	if c.URL != "https://shop.example.com/p/trail-runner" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.Channel != ChannelTiles {
		t.Errorf("Channel = %q", c.Channel)
	}
}

func TestTileChannel_VisibleTextTiles(t *testing.T) {
	body := `<html><body>
	<li class="grid-tile" data-pid="SKU-9">
		<a href="/p/road-runner">
			<img src="/img/road.jpg" alt="Road Runner">
		</a>
		<div class="product-name">Road Runner</div>
		<div class="product-brand">Acme</div>
		<div class="price"><span class="value">$120.00</span></div>
	</li>
	</body></html>`

	ch := &TileChannel{}
	candidates, err := ch.Extract(context.Background(), tilePage(body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Title != "Road Runner" || c.Brand != "Acme" || c.ProductID != "SKU-9" {
		t.Errorf("candidate = %+v", c)
	}
	if c.PriceText != "$120.00" {
		t.Errorf("PriceText = %q", c.PriceText)
	}
	if c.Image != "https://shop.example.com/img/road.jpg" {
		t.Errorf("Image = %q", c.Image)
	}
}

func TestTileChannel_ProductLinkFallback(t *testing.T) {
	body := `<html><body>
	<div class="recommendation">
		<a href="/product/casual-slip-on" aria-label="Casual Slip-On"></a>
		<span class="sale-price">$45.00</span>
	</div>
	<a href="/about-us">About Us</a>
	</body></html>`

	ch := &TileChannel{}
	candidates, err := ch.Extract(context.Background(), tilePage(body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Title != "Casual Slip-On" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.URL != "https://shop.example.com/product/casual-slip-on" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.PriceText != "$45.00" {
		t.Errorf("PriceText = %q, want price from ancestor", c.PriceText)
	}
}

func TestTileChannel_MergesDuplicateURLs(t *testing.T) {
	// The same product surfaces via tile scan and link scan; one survives.
	body := `<html><body>
	<div class="product-tile">
		<a href="/p/runner?color=red">
			<img src="/img/r.jpg" alt="Runner">
		</a>
		<div class="product-name">Runner</div>
		<div class="price">$99</div>
	</div>
	</body></html>`

	ch := &TileChannel{}
	candidates, err := ch.Extract(context.Background(), tilePage(body))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("got %d candidates, want 1 after merge", len(candidates))
	}
}

func TestTileChannel_EmptyPage(t *testing.T) {
	ch := &TileChannel{}
	candidates, err := ch.Extract(context.Background(), tilePage("<html><body><p>no products</p></body></html>"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}
