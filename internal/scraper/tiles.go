// internal/scraper/tiles.go
package scraper

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetchlab/cataloger/pkg/types"
)

// TileChannel is the last-resort heuristic scan over raw markup. Three
// sub-scans run and their outputs merge with intra-page identity dedup:
// a data-attribute scan, a product-tile container scan, and a raw
// product-link scan.
type TileChannel struct{}

func (t *TileChannel) Name() string { return ChannelTiles }

// Attributes carrying machine-readable product payloads, checked in order.
var productDataAttrs = []string{
	"data-product",
	"data-product-info",
	"data-gtm-product",
	"data-tracking",
	"data-analytics",
}

// Anchor href patterns that identify product detail paths.
var productPathPattern = regexp.MustCompile(`(?i)(/p/|/product/|/products/|[-_]p?id=|\.prod\.|/pd/)`)

func (t *TileChannel) Extract(_ context.Context, pg *Page) ([]types.Candidate, error) {
	doc := pg.Document()

	var all []types.Candidate
	all = append(all, t.scanDataAttributes(doc, pg)...)
	all = append(all, t.scanTiles(doc, pg)...)
	all = append(all, t.scanProductLinks(doc, pg)...)

	// Intra-page merge. URL takes priority over product id here since the
	// HTML scans rarely expose ids.
	seen := make(map[string]struct{}, len(all))
	merged := all[:0]
	for _, c := range all {
		key := c.IdentityKey()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.Channel = ChannelTiles
		merged = append(merged, c)
	}

	return merged, nil
}

// scanDataAttributes finds any element carrying a JSON product payload in a
// recognized data attribute.
func (t *TileChannel) scanDataAttributes(doc *goquery.Document, pg *Page) []types.Candidate {
	var out []types.Candidate

	for _, attr := range productDataAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			payload, _ := s.Attr(attr)
			c, ok := candidateFromPayload(payload, pg)
			if !ok {
				return
			}
			if c.URL == "" {
				if href, exists := s.Find("a[href]").First().Attr("href"); exists {
					c.URL = pg.Resolve(href)
				}
			}
			if c.Title != "" && (c.URL != "" || c.ProductID != "") {
				out = append(out, c)
			}
		})
	}

	return out
}

// candidateFromPayload parses a tracking payload that is either a JSON
// object or a JSON array of objects.
func candidateFromPayload(payload string, pg *Page) (types.Candidate, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" || (payload[0] != '{' && payload[0] != '[') {
		return types.Candidate{}, false
	}

	var m map[string]interface{}
	if payload[0] == '[' {
		var arr []map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &arr); err != nil || len(arr) == 0 {
			return types.Candidate{}, false
		}
		m = arr[0]
	} else if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return types.Candidate{}, false
	}

	c := types.Candidate{
		Title:     jsonString(m, "name", "productName", "title"),
		Brand:     jsonString(m, "brand"),
		ProductID: jsonString(m, "id", "productId", "pid", "sku"),
		Currency:  jsonString(m, "currency"),
	}
	if u := jsonString(m, "url", "link"); u != "" {
		c.URL = pg.Resolve(u)
	}
	if img := jsonString(m, "image", "imageUrl"); img != "" {
		c.Image = pg.Resolve(img)
	}

	switch v := m["price"].(type) {
	case float64:
		price := v
		c.Price = &price
	case string:
		c.PriceText = v
	}

	return c, c.Title != "" || c.ProductID != "" || c.URL != ""
}

// Selectors for tile containers and their inner fields.
const (
	tileSelector      = ".product-tile, .product-card, li.grid-tile, [class*='product-item']"
	tileTitleSelector = ".product-name, .tile-title, .product-title, .name, h2, h3"
	tileBrandSelector = ".product-brand, .brand"
	tilePriceSelector = ".price .value, .price .sales, .sales .value, .price"
)

// scanTiles walks product-tile containers, preferring attribute-embedded
// tracking payloads and falling back to visible text.
func (t *TileChannel) scanTiles(doc *goquery.Document, pg *Page) []types.Candidate {
	var out []types.Candidate

	doc.Find(tileSelector).Each(func(_ int, tile *goquery.Selection) {
		var c types.Candidate
		for _, attr := range productDataAttrs {
			if payload, exists := tile.Attr(attr); exists {
				if parsed, ok := candidateFromPayload(payload, pg); ok {
					c = parsed
					break
				}
			}
		}

		if href, exists := tile.Find("a[href]").First().Attr("href"); exists && c.URL == "" {
			c.URL = pg.Resolve(href)
		}
		if c.Title == "" {
			c.Title = cleanText(tile.Find(tileTitleSelector).First().Text())
		}
		if c.Brand == "" {
			c.Brand = cleanText(tile.Find(tileBrandSelector).First().Text())
		}
		if c.PriceText == "" && c.Price == nil {
			c.PriceText = cleanText(tile.Find(tilePriceSelector).First().Text())
		}
		if c.Image == "" {
			if src, exists := tile.Find("img").First().Attr("src"); exists {
				c.Image = pg.Resolve(src)
			}
		}
		if pid, exists := tile.Attr("data-pid"); exists && c.ProductID == "" {
			c.ProductID = pid
		}

		if c.Title != "" && c.URL != "" {
			out = append(out, c)
		}
	})

	return out
}

// scanProductLinks is the rawest fallback: anchors pointing at product
// paths, title inferred from alt text or aria-label, price from the nearest
// ancestor's price-labeled text.
func (t *TileChannel) scanProductLinks(doc *goquery.Document, pg *Page) []types.Candidate {
	var out []types.Candidate

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !productPathPattern.MatchString(href) {
			return
		}

		title := cleanText(a.AttrOr("aria-label", ""))
		if title == "" {
			title = cleanText(a.Find("img").First().AttrOr("alt", ""))
		}
		if title == "" {
			title = cleanText(a.Text())
		}
		if title == "" {
			return
		}

		c := types.Candidate{
			Title: title,
			URL:   pg.Resolve(href),
		}

		// Climb to the nearest ancestor exposing a price-labeled element.
		for node := a.Parent(); node.Length() > 0 && c.PriceText == ""; node = node.Parent() {
			if text := cleanText(node.Find("[class*='price']").First().Text()); text != "" {
				c.PriceText = text
			}
		}

		out = append(out, c)
	})

	return out
}

var spaceRun = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}
