// internal/scraper/api.go
package scraper

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

// APIChannel queries the backend product-search API. Highest trust channel;
// requires the bootstrap credentials harvested from the listing page. The
// only channel that performs network I/O, delegated to the fetch layer.
type APIChannel struct {
	Fetcher   Fetcher
	Endpoints []string
	Category  string
	PageSize  int
	Log       utils.Logger
}

func (a *APIChannel) Name() string { return ChannelAPI }

// Extract builds a search request from the carried bootstrap configuration
// and tries each candidate endpoint in rank order until one returns a
// well-formed hit list. Incomplete credentials or all endpoints failing
// degrade to nil, never to an error: the next channel takes over.
func (a *APIChannel) Extract(ctx context.Context, pg *Page) ([]types.Candidate, error) {
	if pg.State == nil || !pg.State.Bootstrap.Complete() {
		return nil, nil
	}
	boot := pg.State.Bootstrap

	for _, endpoint := range a.Endpoints {
		reqURL, err := a.buildSearchURL(endpoint, boot, pg.State)
		if err != nil {
			continue
		}

		res, err := a.Fetcher.Fetch(ctx, reqURL)
		if err != nil {
			a.Log.WithField("endpoint", endpoint).Debugf("search API call failed: %v", err)
			continue
		}

		candidates, meta, ok := parseSearchResponse(res.Body, pg)
		if !ok {
			continue
		}

		if meta.total > 0 {
			pg.State.Total = meta.total
		}
		if meta.limit > 0 {
			pg.State.Limit = meta.limit
		}
		// Backends that do not echo the offset must not reset the paging
		// position; the state already carries the requested offset.
		if meta.hasOffset {
			pg.State.Offset = meta.offset
		}

		return candidates, nil
	}

	return nil, nil
}

// buildSearchURL expands an endpoint template and attaches the offset,
// limit, refinement, and site parameters.
func (a *APIChannel) buildSearchURL(endpoint string, boot *BootstrapConfig, state *PageState) (string, error) {
	expanded := strings.NewReplacer(
		"{shortCode}", boot.ShortCode,
		"{organizationId}", boot.OrganizationID,
	).Replace(endpoint)

	u, err := url.Parse(expanded)
	if err != nil {
		return "", err
	}

	limit := state.Limit
	if limit <= 0 {
		limit = a.PageSize
	}

	q := u.Query()
	q.Set("siteId", boot.SiteID)
	q.Set("client_id", boot.ClientID)
	q.Set("offset", strconv.Itoa(state.Offset))
	q.Set("limit", strconv.Itoa(limit))

	category := a.Category
	if category == "" {
		category = boot.SearchState["cgid"]
	}
	if category != "" {
		q.Set("refine", "cgid="+category)
	}
	if locale := boot.SearchState["locale"]; locale != "" {
		q.Set("locale", locale)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

type searchMeta struct {
	total     int
	limit     int
	offset    int
	hasOffset bool
}

// parseSearchResponse decodes a hit list response. Malformed or hit-less
// payloads report ok=false so the caller can try the next endpoint.
func parseSearchResponse(body string, pg *Page) ([]types.Candidate, searchMeta, bool) {
	var root map[string]interface{}
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return nil, searchMeta{}, false
	}

	hits := hitList(root)
	if hits == nil {
		// A zero-hit page with a well-formed shape is still a valid
		// response: pagination uses it as a stop signal.
		if _, hasTotal := root["total"]; hasTotal {
			meta := metaFrom(root)
			return nil, meta, true
		}
		return nil, searchMeta{}, false
	}

	candidates := make([]types.Candidate, 0, len(hits))
	for _, hit := range hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		c := candidateFromHit(m, pg)
		c.Channel = ChannelAPI
		if c.Title != "" || c.ProductID != "" {
			candidates = append(candidates, c)
		}
	}

	return candidates, metaFrom(root), true
}

func metaFrom(root map[string]interface{}) searchMeta {
	var meta searchMeta
	if v, ok := jsonInt(root, "total", "count"); ok {
		meta.total = v
	}
	if v, ok := jsonInt(root, "limit", "pageSize"); ok {
		meta.limit = v
	}
	if v, ok := jsonInt(root, "offset", "start"); ok {
		meta.offset = v
		meta.hasOffset = true
	}
	return meta
}
