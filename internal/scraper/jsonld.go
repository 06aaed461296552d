// internal/scraper/jsonld.go
package scraper

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetchlab/cataloger/internal/pipeline"
	"github.com/fetchlab/cataloger/pkg/types"
)

// MarkupChannel collects Product nodes from embedded structured-data
// blocks, whether declared directly, inside an ItemList, or in a @graph.
type MarkupChannel struct{}

func (m *MarkupChannel) Name() string { return ChannelMarkup }

// Extract parses every ld+json script block on the page. Blocks that fail
// to parse are skipped; a page without Product nodes is non-productive.
func (m *MarkupChannel) Extract(_ context.Context, pg *Page) ([]types.Candidate, error) {
	var candidates []types.Candidate

	pg.Document().Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var node interface{}
		if err := json.Unmarshal([]byte(s.Text()), &node); err != nil {
			return
		}
		collectProducts(node, 0, func(product map[string]interface{}) {
			c := candidateFromProductNode(product, pg)
			if c.Title != "" || c.URL != "" {
				candidates = append(candidates, c)
			}
		})
	})

	return candidates, nil
}

// collectProducts walks a structured-data tree and invokes fn for every
// node whose declared type is Product, including nodes nested inside
// ItemList elements and @graph arrays.
func collectProducts(node interface{}, depth int, fn func(map[string]interface{})) {
	if depth > 12 {
		return
	}

	switch v := node.(type) {
	case []interface{}:
		for _, child := range v {
			collectProducts(child, depth+1, fn)
		}
	case map[string]interface{}:
		if nodeType(v) == "product" {
			fn(v)
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "mainEntity", "item"} {
			if child, ok := v[key]; ok {
				collectProducts(child, depth+1, fn)
			}
		}
	}
}

// nodeType normalizes the @type field, which may be a string or a list.
func nodeType(m map[string]interface{}) string {
	switch t := m["@type"].(type) {
	case string:
		return strings.ToLower(t)
	case []interface{}:
		for _, raw := range t {
			if s, ok := raw.(string); ok && strings.EqualFold(s, "Product") {
				return "product"
			}
		}
	}
	return ""
}

// candidateFromProductNode maps one schema.org Product node to a candidate.
func candidateFromProductNode(m map[string]interface{}, pg *Page) types.Candidate {
	c := types.Candidate{
		Title:       jsonString(m, "name"),
		Description: jsonString(m, "description"),
		ProductID:   jsonString(m, "productID", "sku", "mpn"),
		ColorName:   jsonString(m, "color"),
		Channel:     ChannelMarkup,
	}

	if brand, ok := m["brand"].(map[string]interface{}); ok {
		c.Brand = jsonString(brand, "name")
	} else {
		c.Brand = jsonString(m, "brand")
	}

	if u := jsonString(m, "url"); u != "" {
		c.URL = pg.Resolve(u)
	}

	switch img := m["image"].(type) {
	case string:
		c.Image = pg.Resolve(img)
	case []interface{}:
		for _, raw := range img {
			if s, ok := raw.(string); ok {
				c.Images = append(c.Images, pg.Resolve(s))
			}
		}
		if len(c.Images) > 0 {
			c.Image = c.Images[0]
		}
	}

	if material := jsonString(m, "material"); material != "" {
		c.Materials = []string{material}
	}

	applyOffer(&c, m["offers"])
	return c
}

// applyOffer folds an Offer or AggregateOffer node into the candidate.
func applyOffer(c *types.Candidate, raw interface{}) {
	offer, ok := firstOffer(raw)
	if !ok {
		return
	}

	if price, ok := offerPrice(offer, "price", "lowPrice"); ok {
		c.Price = &price
	}
	if high, ok := offerPrice(offer, "highPrice"); ok {
		c.OriginalPrice = &high
	}
	if cur := jsonString(offer, "priceCurrency"); cur != "" {
		c.Currency = cur
	}

	if avail := jsonString(offer, "availability"); avail != "" {
		if strings.Contains(strings.ToLower(avail), "instock") {
			c.InStock = types.StockIn
		} else if strings.Contains(strings.ToLower(avail), "outofstock") {
			c.InStock = types.StockOut
		}
	}
}

func firstOffer(raw interface{}) (map[string]interface{}, bool) {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v, true
	case []interface{}:
		for _, child := range v {
			if m, ok := child.(map[string]interface{}); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// offerPrice reads a price that may be numeric or a numeric string.
func offerPrice(offer map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := offer[key].(type) {
		case float64:
			return v, true
		case string:
			if f, ok := pipeline.ParsePrice(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}
