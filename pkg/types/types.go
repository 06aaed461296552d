// Package types defines the canonical product record produced by the
// extraction engine, plus the raw per-channel candidate shape that precedes
// normalization. These are the only types shared between the engine, the
// record pipeline, and the output sinks.
package types

import (
	"net/url"
	"strings"
	"time"
)

// Stock is the tri-state availability signal. Channels that expose no
// availability information leave it unknown; the normalizer defaults
// unknown to in-stock.
type Stock int

const (
	StockUnknown Stock = iota
	StockIn
	StockOut
)

// String returns the wire representation used by the output sinks.
func (s Stock) String() string {
	switch s {
	case StockIn:
		return "in_stock"
	case StockOut:
		return "out_of_stock"
	default:
		return "unknown"
	}
}

// Bool reports availability with the documented default: unknown counts
// as in stock.
func (s Stock) Bool() bool {
	return s != StockOut
}

// ProductRecord is the canonical unit of output. A record is acceptable for
// persistence only when both URL and Title are non-empty.
type ProductRecord struct {
	Title         string            `json:"title" bson:"title"`
	Brand         string            `json:"brand,omitempty" bson:"brand,omitempty"`
	Price         *float64          `json:"price,omitempty" bson:"price,omitempty"`
	OriginalPrice *float64          `json:"original_price,omitempty" bson:"original_price,omitempty"`
	Currency      string            `json:"currency,omitempty" bson:"currency,omitempty"`
	URL           string            `json:"url" bson:"url"`
	Image         string            `json:"image,omitempty" bson:"image,omitempty"`
	Images        []string          `json:"images,omitempty" bson:"images,omitempty"`
	Colors        []string          `json:"colors,omitempty" bson:"colors,omitempty"`
	Sizes         []string          `json:"sizes,omitempty" bson:"sizes,omitempty"`
	InStock       bool              `json:"in_stock" bson:"in_stock"`
	// Stock keeps the pre-collapse availability signal so a detail merge can
	// tell "known in stock" apart from "no signal". InStock is its collapsed
	// form and the only one serialized.
	Stock Stock `json:"-" bson:"-"`
	ProductID     string            `json:"product_id,omitempty" bson:"product_id,omitempty"`
	Description   string            `json:"description,omitempty" bson:"description,omitempty"`
	Features      []string          `json:"features,omitempty" bson:"features,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	Categories    []string          `json:"categories,omitempty" bson:"categories,omitempty"`
	Gender        string            `json:"gender,omitempty" bson:"gender,omitempty"`
	Materials     []string          `json:"materials,omitempty" bson:"materials,omitempty"`
	ColorName     string            `json:"color_name,omitempty" bson:"color_name,omitempty"`
	Channel       string            `json:"channel,omitempty" bson:"channel,omitempty"`
	ScrapedAt     time.Time         `json:"scraped_at" bson:"scraped_at"`
}

// IdentityKey returns the deduplication key: the product id when present,
// otherwise the canonicalized URL. Two URLs carrying the same product id are
// the same product even when tracking parameters differ.
func (r *ProductRecord) IdentityKey() string {
	if r.ProductID != "" {
		return "id:" + r.ProductID
	}
	return "url:" + CanonicalURL(r.URL)
}

// Acceptable reports whether the record satisfies the persistence invariant.
func (r *ProductRecord) Acceptable() bool {
	return r != nil && r.Title != "" && r.URL != ""
}

// CanonicalURL strips query and fragment from identifier-bearing URLs so
// tracking parameters do not split one product into several identities.
// Unparseable input is returned unchanged.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Candidate is an unvalidated, channel-specific parse of a product. Every
// field is optional; the normalizer decides what survives. Price values may
// arrive typed (API, embedded state) or as noisy display text (HTML tiles),
// never both for the same field.
type Candidate struct {
	Title             string
	Brand             string
	Price             *float64
	PriceText         string
	OriginalPrice     *float64
	OriginalPriceText string
	Currency          string
	URL               string
	Image             string
	Images            []string
	Colors            []string
	Sizes             []string
	InStock           Stock
	ProductID         string
	Description       string
	Features          []string
	Attributes        map[string]string
	Categories        []string
	Gender            string
	Materials         []string
	ColorName         string
	Channel           string
}

// IdentityKey mirrors ProductRecord.IdentityKey for intra-page merging.
// URL takes priority over product id here: the HTML scans that feed this
// path rarely expose ids, and a URL match must collapse to one candidate.
func (c *Candidate) IdentityKey() string {
	if c.URL != "" {
		return "url:" + CanonicalURL(c.URL)
	}
	if c.ProductID != "" {
		return "id:" + c.ProductID
	}
	return ""
}
