// internal/scraper/types.go

// Package scraper implements the multi-strategy extraction and pagination
// engine: the fetch resilience layer, the four data channels, the pagination
// controller, and the orchestrator that drives page tasks through them.
package scraper

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetchlab/cataloger/pkg/types"
)

// TaskKind classifies a unit of pagination work.
type TaskKind int

const (
	TaskListing TaskKind = iota
	TaskGrid
	TaskDetail
)

func (k TaskKind) String() string {
	switch k {
	case TaskGrid:
		return "grid"
	case TaskDetail:
		return "detail"
	default:
		return "listing"
	}
}

// Strategy is the pagination strategy chosen for a listing branch. The
// transition INIT -> {API, GRID, LINK} -> EXHAUSTED is one-directional: a
// branch never reverts to an earlier strategy once a later one was chosen.
type Strategy int

const (
	StrategyInit Strategy = iota
	StrategyAPI
	StrategyGrid
	StrategyLink
	StrategyExhausted
)

func (s Strategy) String() string {
	switch s {
	case StrategyAPI:
		return "api"
	case StrategyGrid:
		return "grid"
	case StrategyLink:
		return "link"
	case StrategyExhausted:
		return "exhausted"
	default:
		return "init"
	}
}

// Channel name constants, in descending trust order.
const (
	ChannelAPI    = "api"
	ChannelState  = "state"
	ChannelMarkup = "markup"
	ChannelTiles  = "tiles"
)

// BootstrapConfig holds the site-issued credentials harvested from a listing
// page that the backend search API requires. Complete reports whether an API
// call can be attempted at all.
type BootstrapConfig struct {
	ShortCode      string
	ClientID       string
	OrganizationID string
	SiteID         string
	SearchState    map[string]string
}

// Complete reports whether every credential the search API needs is present.
func (b *BootstrapConfig) Complete() bool {
	return b != nil && b.ShortCode != "" && b.ClientID != "" &&
		b.OrganizationID != "" && b.SiteID != ""
}

// PageState carries channel-specific continuation data between the page that
// produced it and its successor tasks, so a GRID or DETAIL task does not
// re-derive bootstrap configuration.
type PageState struct {
	Bootstrap  *BootstrapConfig
	CategoryID string
	Locale     string
	// BaseQuery preserves the originating request's query parameters for
	// grid URL construction.
	BaseQuery url.Values
	// API pagination metadata from the last productive fetch.
	Total  int
	Limit  int
	Offset int
}

// Clone returns a shallow copy safe for a successor task to mutate.
func (ps *PageState) Clone() *PageState {
	if ps == nil {
		return &PageState{}
	}
	cp := *ps
	return &cp
}

// PageTask is one unit of pagination work pulled from the queue.
type PageTask struct {
	URL      string
	Kind     TaskKind
	Page     int
	Offset   int
	Strategy Strategy
	State    *PageState
	// Base is the listing-derived stub a DETAIL task enriches.
	Base *types.ProductRecord
}

// Page is the parsed context handed to channel extractors: the fetched body,
// the resolved URL, and the carried state. The goquery document is built
// lazily since the API channel never needs one.
type Page struct {
	URL   *url.URL
	Body  string
	State *PageState

	docOnce sync.Once
	doc     *goquery.Document
}

// Document parses the page body on first use. A body that does not parse
// yields an empty document, never an error: parse faults degrade to
// non-productive channels.
func (p *Page) Document() *goquery.Document {
	p.docOnce.Do(func() {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Body))
		if err != nil {
			doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
		}
		p.doc = doc
	})
	return p.doc
}

// Resolve makes a possibly relative href absolute against the page URL.
func (p *Page) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || p.URL == nil {
		return href
	}
	ref, err := p.URL.Parse(href)
	if err != nil {
		return href
	}
	return ref.String()
}

// Channel is one extraction strategy. Extract returns the candidates parsed
// from the page, or an empty slice when the channel is non-productive.
// Extractors never fail on malformed input; an error is reserved for the API
// channel's network layer.
type Channel interface {
	Name() string
	Extract(ctx context.Context, pg *Page) ([]types.Candidate, error)
}
