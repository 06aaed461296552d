// internal/scraper/state_test.go
package scraper

import (
	"context"
	"net/url"
	"testing"
)

func TestScanBalancedObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{
			name:     "simple object",
			input:    `window.__STATE__ = {"a":1};`,
			expected: `{"a":1}`,
			ok:       true,
		},
		{
			name:     "nested objects",
			input:    `x = {"a":{"b":{"c":1}},"d":2}; more`,
			expected: `{"a":{"b":{"c":1}},"d":2}`,
			ok:       true,
		},
		{
			name:     "braces inside strings do not count",
			input:    `{"a":"}{","b":{"c":1}}`,
			expected: `{"a":"}{","b":{"c":1}}`,
			ok:       true,
		},
		{
			name:     "escaped quote inside string",
			input:    `{"a":"he said \"}\"","b":1} trailing`,
			expected: `{"a":"he said \"}\"","b":1}`,
			ok:       true,
		},
		{
			name:  "unbalanced",
			input: `{"a":{"b":1}`,
			ok:    false,
		},
		{
			name:  "no object",
			input: `plain text`,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scanBalancedObject(tt.input, 0)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStateChannel_Extract(t *testing.T) {
	body := `<html><head><script>
		window.__PRELOADED_STATE__ = {"search":{"productSearch":{
			"total": 55, "limit": 20, "offset": 0,
			"hits": [
				{"productId":"SKU-1","productName":"Trail Runner","price":89.5,
				 "link":"/p/trail-runner","orderable":true,
				 "image":{"link":"/img/trail.jpg"},
				 "variationAttributes":[
					{"id":"color","values":[{"name":"Red"},{"name":"Black"}]},
					{"id":"size","values":[{"name":"M"},{"name":"L"}]}
				 ]},
				{"productId":"SKU-2","productName":"Road Runner","price":120,
				 "priceMax":150,"orderable":false}
			]}}};
	</script></head><body></body></html>`

	pageURL, _ := url.Parse("https://shop.example.com/c/shoes")
	pg := &Page{URL: pageURL, Body: body, State: &PageState{}}

	ch := &StateChannel{Markers: []string{"window.__PRELOADED_STATE__ ="}}
	candidates, err := ch.Extract(context.Background(), pg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	first := candidates[0]
	if first.Title != "Trail Runner" || first.ProductID != "SKU-1" {
		t.Errorf("first candidate = %+v", first)
	}
	if first.URL != "https://shop.example.com/p/trail-runner" {
		t.Errorf("URL = %q, want resolved absolute", first.URL)
	}
	if first.Image != "https://shop.example.com/img/trail.jpg" {
		t.Errorf("Image = %q", first.Image)
	}
	if first.Price == nil || *first.Price != 89.5 {
		t.Errorf("Price = %v", first.Price)
	}
	if len(first.Colors) != 2 || len(first.Sizes) != 2 {
		t.Errorf("variations = %v / %v", first.Colors, first.Sizes)
	}

	second := candidates[1]
	if second.OriginalPrice == nil || *second.OriginalPrice != 150 {
		t.Errorf("OriginalPrice = %v", second.OriginalPrice)
	}

	if pg.State.Total != 55 || pg.State.Limit != 20 || pg.State.Offset != 0 {
		t.Errorf("pagination metadata = %+v", pg.State)
	}
}

func TestStateChannel_Extract_NoMarker(t *testing.T) {
	pageURL, _ := url.Parse("https://shop.example.com/c/shoes")
	pg := &Page{URL: pageURL, Body: "<html><body>nothing here</body></html>", State: &PageState{}}

	ch := &StateChannel{Markers: []string{"window.__PRELOADED_STATE__ ="}}
	candidates, err := ch.Extract(context.Background(), pg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}

func TestStateChannel_Extract_MalformedState(t *testing.T) {
	// Unparseable JSON after the marker degrades to non-productive.
	pageURL, _ := url.Parse("https://shop.example.com/c/shoes")
	pg := &Page{
		URL:   pageURL,
		Body:  `window.__PRELOADED_STATE__ = {"broken": `,
		State: &PageState{},
	}

	ch := &StateChannel{Markers: []string{"window.__PRELOADED_STATE__ ="}}
	candidates, err := ch.Extract(context.Background(), pg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}
}
