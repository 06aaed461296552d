// internal/scraper/pagination.go
package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/fetchlab/cataloger/internal/utils"
)

// Query parameters stripped from the originating request when building a
// grid URL; the controller sets its own.
var paginationParams = []string{"start", "sz", "size", "page", "offset", "limit"}

// Selectors tried for an explicit next-page relation, in order.
var nextLinkSelectors = []string{
	`link[rel="next"]`,
	`a[rel="next"]`,
	`.pagination a.next`,
	`a.next-page`,
}

// PageOutcome is what the orchestrator learned from one processed page and
// feeds the pagination decision.
type PageOutcome struct {
	Task *PageTask
	Page *Page
	// Driver is the first channel that produced usable candidates; it
	// alone decides the continuation strategy.
	Driver string
	// DriverCount is the number of candidates the driver produced.
	DriverCount int
}

// Controller decides the successor task for a page. Strategy transitions
// are one-directional per listing branch: INIT picks API, GRID, or LINK
// paging once, and the branch stays on that strategy until EXHAUSTED.
type Controller struct {
	maxPages int
	pageSize int
	locale   string
	log      utils.Logger
}

// NewController builds a pagination controller. maxPages 0 means no page
// ceiling.
func NewController(maxPages, pageSize int, locale string, log utils.Logger) *Controller {
	if pageSize <= 0 {
		pageSize = 24
	}
	return &Controller{
		maxPages: maxPages,
		pageSize: pageSize,
		locale:   locale,
		log:      log,
	}
}

// Next returns the successor task for the branch, or nil when the branch is
// exhausted. Detail tasks never paginate.
func (pc *Controller) Next(out *PageOutcome) *PageTask {
	task := out.Task
	if task.Kind == TaskDetail {
		return nil
	}
	if pc.maxPages > 0 && task.Page >= pc.maxPages {
		return nil
	}

	strategy := task.Strategy
	if strategy == StrategyInit {
		// A seed page where no channel produced anything navigable has no
		// further fallback; the branch terminates.
		if out.DriverCount == 0 {
			return nil
		}
		strategy = pc.chooseStrategy(out)
	}

	switch strategy {
	case StrategyAPI:
		return pc.nextAPI(out)
	case StrategyGrid:
		return pc.nextGrid(out)
	case StrategyLink:
		return pc.nextLink(out)
	default:
		return nil
	}
}

// chooseStrategy picks the paging protocol for a fresh listing branch:
// API offset/limit when the API channel produced a result with pagination
// metadata, server-rendered grid paging when embedded state exists and grid
// parameters are derivable, generic link paging otherwise.
func (pc *Controller) chooseStrategy(out *PageOutcome) Strategy {
	st := out.Page.State

	if out.Driver == ChannelAPI && st != nil && st.Total > 0 && st.Limit > 0 {
		return StrategyAPI
	}
	if out.Driver == ChannelState && st != nil && gridParamsDerivable(st) {
		return StrategyGrid
	}
	return StrategyLink
}

func gridParamsDerivable(st *PageState) bool {
	if st.Bootstrap == nil || st.Bootstrap.SiteID == "" {
		return false
	}
	return st.CategoryID != "" || st.Bootstrap.SearchState["cgid"] != ""
}

// nextAPI advances offset += limit, stopping at the total, on an empty
// page, or at the page ceiling.
func (pc *Controller) nextAPI(out *PageOutcome) *PageTask {
	st := out.Page.State
	if st == nil || st.Limit <= 0 {
		return nil
	}
	if out.DriverCount == 0 {
		return nil
	}

	next := st.Offset + st.Limit
	// Never issue an offset at or past the total.
	if st.Total > 0 && next >= st.Total {
		return nil
	}

	nextState := st.Clone()
	nextState.Offset = next

	return &PageTask{
		URL:      out.Task.URL,
		Kind:     TaskListing,
		Page:     out.Task.Page + 1,
		Offset:   next,
		Strategy: StrategyAPI,
		State:    nextState,
	}
}

// nextGrid constructs the next server-rendered grid URL: every query
// parameter of the originating request except pagination ones, plus the
// category id, start offset, and page size.
func (pc *Controller) nextGrid(out *PageOutcome) *PageTask {
	st := out.Page.State
	if st == nil || st.Bootstrap == nil {
		return nil
	}
	if out.Task.Strategy == StrategyGrid && out.DriverCount == 0 {
		return nil
	}

	category := st.CategoryID
	if category == "" {
		category = st.Bootstrap.SearchState["cgid"]
	}
	if category == "" {
		return nil
	}

	locale := pc.locale
	if locale == "" {
		locale = st.Bootstrap.SearchState["locale"]
	}
	if locale == "" {
		locale = "default"
	}

	nextOffset := out.Task.Offset + pc.pageSize

	gridURL := *out.Page.URL
	gridURL.Path = "/on/demandware.store/Sites-" + st.Bootstrap.SiteID + "-Site/" + locale + "/Search-UpdateGrid"

	q := url.Values{}
	for key, vals := range st.BaseQuery {
		if isPaginationParam(key) {
			continue
		}
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	q.Set("cgid", category)
	q.Set("start", strconv.Itoa(nextOffset))
	q.Set("sz", strconv.Itoa(pc.pageSize))
	gridURL.RawQuery = q.Encode()
	gridURL.Fragment = ""

	nextState := st.Clone()
	nextState.Offset = nextOffset

	return &PageTask{
		URL:      gridURL.String(),
		Kind:     TaskGrid,
		Page:     out.Task.Page + 1,
		Offset:   nextOffset,
		Strategy: StrategyGrid,
		State:    nextState,
	}
}

// nextLink prefers an explicit next relation in the page, then falls back
// to incrementing a recognized pagination query parameter.
func (pc *Controller) nextLink(out *PageOutcome) *PageTask {
	if out.Task.Strategy == StrategyLink && out.DriverCount == 0 {
		return nil
	}

	nextURL := pc.explicitNextURL(out)
	if nextURL == "" {
		nextURL = pc.incrementedURL(out.Page.URL)
	}
	if nextURL == "" || nextURL == out.Task.URL {
		return nil
	}

	return &PageTask{
		URL:      nextURL,
		Kind:     TaskListing,
		Page:     out.Task.Page + 1,
		Offset:   out.Task.Offset + pc.pageSize,
		Strategy: StrategyLink,
		State:    out.Page.State.Clone(),
	}
}

func (pc *Controller) explicitNextURL(out *PageOutcome) string {
	doc := out.Page.Document()
	for _, selector := range nextLinkSelectors {
		href, exists := doc.Find(selector).First().Attr("href")
		if !exists {
			continue
		}
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			continue
		}
		return out.Page.Resolve(href)
	}
	return ""
}

// incrementedURL bumps start by the page size, or page by one, whichever
// parameter the current URL already carries.
func (pc *Controller) incrementedURL(current *url.URL) string {
	if current == nil {
		return ""
	}
	q := current.Query()

	if raw := q.Get("start"); raw != "" {
		start, err := strconv.Atoi(raw)
		if err != nil {
			return ""
		}
		size := pc.pageSize
		if raw := q.Get("sz"); raw != "" {
			if sz, err := strconv.Atoi(raw); err == nil && sz > 0 {
				size = sz
			}
		}
		q.Set("start", strconv.Itoa(start+size))
	} else if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return ""
		}
		q.Set("page", strconv.Itoa(page+1))
	} else {
		return ""
	}

	next := *current
	next.RawQuery = q.Encode()
	return next.String()
}

func isPaginationParam(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range paginationParams {
		if lower == p {
			return true
		}
	}
	return false
}
