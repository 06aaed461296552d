// internal/pipeline/normalize.go

// Package pipeline turns raw channel candidates into canonical product
// records and gates them through deduplication and user filters before
// persistence.
package pipeline

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/fetchlab/cataloger/pkg/types"
)

// Normalizer merges raw candidates into canonical product records: URL
// resolution against the site origin, price coercion from noisy strings,
// stock defaulting, and the original-price invariant.
type Normalizer struct {
	origin          *url.URL
	defaultCurrency string
}

// NewNormalizer creates a normalizer for one site. origin resolves relative
// URLs; defaultCurrency fills records whose channel gave no currency.
func NewNormalizer(origin string, defaultCurrency string) (*Normalizer, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	return &Normalizer{
		origin:          u,
		defaultCurrency: normalizeCurrency(defaultCurrency, "USD"),
	}, nil
}

// Normalize converts one candidate into a canonical record.
func (n *Normalizer) Normalize(c types.Candidate) *types.ProductRecord {
	rec := &types.ProductRecord{
		Title:       strings.TrimSpace(c.Title),
		Brand:       strings.TrimSpace(c.Brand),
		Currency:    normalizeCurrency(c.Currency, n.defaultCurrency),
		URL:         n.resolve(c.URL),
		Image:       n.resolve(c.Image),
		ProductID:   strings.TrimSpace(c.ProductID),
		Description: strings.TrimSpace(c.Description),
		Features:    dedupStrings(c.Features),
		Attributes:  c.Attributes,
		Categories:  dedupStrings(c.Categories),
		Gender:      strings.TrimSpace(c.Gender),
		Materials:   dedupStrings(c.Materials),
		ColorName:   strings.TrimSpace(c.ColorName),
		Colors:      dedupStrings(c.Colors),
		Sizes:       dedupStrings(c.Sizes),
		Channel:     c.Channel,
		// No stock signal defaults to available.
		InStock:   c.InStock.Bool(),
		Stock:     c.InStock,
		ScrapedAt: time.Now().UTC(),
	}

	for _, img := range c.Images {
		rec.Images = append(rec.Images, n.resolve(img))
	}
	rec.Images = dedupStrings(rec.Images)

	price := c.Price
	if price == nil {
		if f, ok := ParsePrice(c.PriceText); ok {
			price = &f
		}
	}
	rec.Price = price

	original := c.OriginalPrice
	if original == nil {
		if f, ok := ParsePrice(c.OriginalPriceText); ok {
			original = &f
		}
	}
	// originalPrice only survives when strictly greater than price.
	if original != nil && price != nil && *original > *price {
		rec.OriginalPrice = original
	}

	if rec.URL != "" {
		rec.URL = types.CanonicalURL(rec.URL)
	} else if rec.ProductID != "" {
		// API hits frequently carry no link; derive a stable product URL
		// from the site origin so the record remains addressable.
		rec.URL = n.origin.Scheme + "://" + n.origin.Host + "/p/" + url.PathEscape(rec.ProductID)
	}

	return rec
}

// Merge enriches a listing-derived base record with detail-page data.
// Scalar detail fields override only when non-null; arrays with detail
// content replace the listing arrays outright, since detail data is assumed
// more complete.
func (n *Normalizer) Merge(base, detail *types.ProductRecord) *types.ProductRecord {
	if base == nil {
		return detail
	}
	if detail == nil {
		return base
	}

	merged := *base

	if detail.Title != "" {
		merged.Title = detail.Title
	}
	if detail.Brand != "" {
		merged.Brand = detail.Brand
	}
	if detail.Price != nil {
		merged.Price = detail.Price
		merged.OriginalPrice = nil
		if detail.OriginalPrice != nil && *detail.OriginalPrice > *detail.Price {
			merged.OriginalPrice = detail.OriginalPrice
		}
	}
	if detail.Currency != "" {
		merged.Currency = detail.Currency
	}
	if detail.Image != "" {
		merged.Image = detail.Image
	}
	if detail.ProductID != "" {
		merged.ProductID = detail.ProductID
	}
	if detail.Description != "" {
		merged.Description = detail.Description
	}
	if detail.Gender != "" {
		merged.Gender = detail.Gender
	}
	if detail.ColorName != "" {
		merged.ColorName = detail.ColorName
	}
	if detail.Channel != "" {
		merged.Channel = detail.Channel
	}
	// Stock overrides only on a known detail signal; a detail page without
	// availability markup must not flip a listing-derived out-of-stock.
	if detail.Stock != types.StockUnknown {
		merged.Stock = detail.Stock
		merged.InStock = detail.InStock
	}

	if len(detail.Images) > 0 {
		merged.Images = detail.Images
	}
	if len(detail.Colors) > 0 {
		merged.Colors = detail.Colors
	}
	if len(detail.Sizes) > 0 {
		merged.Sizes = detail.Sizes
	}
	if len(detail.Features) > 0 {
		merged.Features = detail.Features
	}
	if len(detail.Categories) > 0 {
		merged.Categories = detail.Categories
	}
	if len(detail.Materials) > 0 {
		merged.Materials = detail.Materials
	}
	if len(detail.Attributes) > 0 {
		merged.Attributes = detail.Attributes
	}

	return &merged
}

// resolve makes a URL absolute against the site origin.
func (n *Normalizer) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := n.origin.Parse(raw)
	if err != nil {
		return raw
	}
	return ref.String()
}

// ParsePrice coerces a noisy display string ("€ 1.299,95", "$49.99 USD")
// into a decimal by stripping non-numeric characters and picking the
// decimal separator from whichever of '.' and ',' appears last.
func ParsePrice(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')
	switch {
	case lastComma > lastDot:
		// Comma is the decimal separator.
		cleaned = strings.ReplaceAll(cleaned[:lastComma], ".", "") + "." + cleaned[lastComma+1:]
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// normalizeCurrency validates an ISO-ish code, falling back when the
// channel supplied garbage.
func normalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return fallback
}

// dedupStrings removes duplicates and blanks while preserving first-seen
// order.
func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
