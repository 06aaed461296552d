// internal/scraper/state.go
package scraper

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fetchlab/cataloger/pkg/types"
)

// StateChannel parses the state object embedded in listing page markup and
// looks for a cached product-search query result nested inside it. Second
// in trust order after the API channel.
type StateChannel struct {
	Markers []string
}

func (s *StateChannel) Name() string { return ChannelState }

// Extract scans the raw body for each marker token, takes the first
// balanced object following it, and walks the parsed tree for a hit list.
// Pagination metadata found next to the hits is written to the page state.
func (s *StateChannel) Extract(_ context.Context, pg *Page) ([]types.Candidate, error) {
	for _, marker := range s.Markers {
		idx := strings.Index(pg.Body, marker)
		if idx < 0 {
			continue
		}

		raw, ok := scanBalancedObject(pg.Body, idx+len(marker))
		if !ok {
			continue
		}

		var root map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &root); err != nil {
			continue
		}

		result := findSearchResult(root, 0)
		if result == nil {
			continue
		}

		hits := hitList(result)
		if len(hits) == 0 {
			continue
		}

		candidates := make([]types.Candidate, 0, len(hits))
		for _, hit := range hits {
			m, ok := hit.(map[string]interface{})
			if !ok {
				continue
			}
			c := candidateFromHit(m, pg)
			c.Channel = ChannelState
			if c.Title != "" || c.URL != "" || c.ProductID != "" {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		if pg.State != nil {
			if total, ok := jsonInt(result, "total", "count"); ok {
				pg.State.Total = total
			}
			if limit, ok := jsonInt(result, "limit", "pageSize", "sz"); ok {
				pg.State.Limit = limit
			}
			if offset, ok := jsonInt(result, "offset", "start"); ok {
				pg.State.Offset = offset
			}
		}

		return candidates, nil
	}

	return nil, nil
}

// scanBalancedObject returns the first balanced {...} object at or after
// start. The scan is string-and-escape aware: braces inside quoted strings
// do not affect the depth count.
func scanBalancedObject(s string, start int) (string, bool) {
	open := strings.Index(s[start:], "{")
	if open < 0 {
		return "", false
	}
	open += start

	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open : i+1], true
			}
		}
	}

	return "", false
}

// findSearchResult walks the parsed state tree for the first object that
// carries a non-empty hit list. Depth is bounded to keep pathological
// payloads cheap.
func findSearchResult(node interface{}, depth int) map[string]interface{} {
	if depth > 24 {
		return nil
	}

	switch v := node.(type) {
	case map[string]interface{}:
		if len(hitList(v)) > 0 {
			return v
		}
		for _, child := range v {
			if found := findSearchResult(child, depth+1); found != nil {
				return found
			}
		}
	case []interface{}:
		for _, child := range v {
			if found := findSearchResult(child, depth+1); found != nil {
				return found
			}
		}
	}

	return nil
}

// hitList returns the hit array of a search result object, if any.
func hitList(m map[string]interface{}) []interface{} {
	for _, key := range []string{"hits", "products", "productSearchResults"} {
		if arr, ok := m[key].([]interface{}); ok && len(arr) > 0 {
			if _, isObj := arr[0].(map[string]interface{}); isObj {
				return arr
			}
		}
	}
	return nil
}

// candidateFromHit maps one heterogeneous hit object onto a raw candidate.
// Shared by the state and API channels, whose payloads overlap heavily.
func candidateFromHit(m map[string]interface{}, pg *Page) types.Candidate {
	c := types.Candidate{
		Title:     jsonString(m, "productName", "name", "title"),
		Brand:     jsonString(m, "brand"),
		ProductID: jsonString(m, "productId", "id", "pid"),
		Currency:  jsonString(m, "currency"),
	}

	if price, ok := firstFloat(m,
		[]string{"price"},
		[]string{"price", "sales", "value"},
		[]string{"prices", "sale"},
		[]string{"salePrice"},
	); ok {
		c.Price = &price
	}
	if list, ok := firstFloat(m,
		[]string{"priceMax"},
		[]string{"price", "list", "value"},
		[]string{"prices", "list"},
		[]string{"listPrice"},
		[]string{"strikethroughPrice"},
	); ok {
		c.OriginalPrice = &list
	}

	if link := jsonString(m, "link", "url", "productUrl"); link != "" {
		c.URL = pg.Resolve(link)
	}
	c.Image = pg.Resolve(hitImage(m))

	if orderable, ok := jsonBool(m, "orderable", "inStock", "available", "purchasable"); ok {
		if orderable {
			c.InStock = types.StockIn
		} else {
			c.InStock = types.StockOut
		}
	}

	c.Colors, c.Sizes = variationSets(m)
	return c
}

// hitImage digs out the primary image URL from the common shapes.
func hitImage(m map[string]interface{}) string {
	if img, ok := m["image"].(map[string]interface{}); ok {
		if s := jsonString(img, "link", "url", "disBaseLink"); s != "" {
			return s
		}
	}
	if s := jsonString(m, "image", "imageUrl", "imageURL"); s != "" {
		return s
	}
	if arr, ok := m["images"].([]interface{}); ok && len(arr) > 0 {
		switch first := arr[0].(type) {
		case string:
			return first
		case map[string]interface{}:
			return jsonString(first, "link", "url", "src")
		}
	}
	return ""
}

// variationSets extracts color and size value lists from variation
// attribute arrays.
func variationSets(m map[string]interface{}) (colors, sizes []string) {
	attrs, ok := m["variationAttributes"].([]interface{})
	if !ok {
		return nil, nil
	}

	for _, raw := range attrs {
		attr, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		id := strings.ToLower(jsonString(attr, "id", "attributeId"))
		values, ok := attr["values"].([]interface{})
		if !ok {
			continue
		}

		var names []string
		for _, rawVal := range values {
			val, ok := rawVal.(map[string]interface{})
			if !ok {
				continue
			}
			if name := jsonString(val, "name", "value"); name != "" {
				names = append(names, name)
			}
		}

		switch {
		case strings.Contains(id, "color"):
			colors = append(colors, names...)
		case strings.Contains(id, "size"):
			sizes = append(sizes, names...)
		}
	}
	return colors, sizes
}

// jsonString returns the first non-empty string value among keys.
func jsonString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// jsonBool returns the first boolean value among keys.
func jsonBool(m map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		if b, ok := m[key].(bool); ok {
			return b, true
		}
	}
	return false, false
}

// jsonInt returns the first numeric value among keys, truncated to int.
func jsonInt(m map[string]interface{}, keys ...string) (int, bool) {
	for _, key := range keys {
		if f, ok := m[key].(float64); ok {
			return int(f), true
		}
	}
	return 0, false
}

// firstFloat tries each path in order and returns the first numeric value.
func firstFloat(m map[string]interface{}, paths ...[]string) (float64, bool) {
	for _, path := range paths {
		node := interface{}(m)
		ok := true
		for _, key := range path {
			obj, isMap := node.(map[string]interface{})
			if !isMap {
				ok = false
				break
			}
			node, ok = obj[key]
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		if f, isNum := node.(float64); isNum {
			return f, true
		}
	}
	return 0, false
}
