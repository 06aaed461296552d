// internal/scraper/bootstrap.go
package scraper

import "regexp"

// The bootstrap credentials are embedded in listing page markup as inline
// script configuration. The string matching is deliberately confined to
// this file so the fragile part stays unit-testable in isolation.

var (
	reShortCode = regexp.MustCompile(`["']?short_?[cC]ode["']?\s*[:=]\s*["']([A-Za-z0-9_-]+)["']`)
	reClientID  = regexp.MustCompile(`["']?client_?[iI]d["']?\s*[:=]\s*["']([A-Za-z0-9_-]+)["']`)
	reOrgID     = regexp.MustCompile(`["']?organization_?[iI]d["']?\s*[:=]\s*["']([A-Za-z0-9_-]+)["']`)
	reSiteID    = regexp.MustCompile(`["']?site_?[iI]d["']?\s*[:=]\s*["']([A-Za-z0-9_-]+)["']`)
	reCategory  = regexp.MustCompile(`["']?cgid["']?\s*[:=]\s*["']([A-Za-z0-9_%/-]+)["']`)
	reLocale    = regexp.MustCompile(`["']?locale["']?\s*[:=]\s*["']([a-z]{2}[_-][A-Z]{2})["']`)
)

// ExtractBootstrapConfig harvests the backend search API credentials from a
// listing page body. Missing values are left empty; the caller decides via
// Complete whether the API channel can run at all.
func ExtractBootstrapConfig(body string) *BootstrapConfig {
	cfg := &BootstrapConfig{
		SearchState: make(map[string]string),
	}

	if m := reShortCode.FindStringSubmatch(body); m != nil {
		cfg.ShortCode = m[1]
	}
	if m := reClientID.FindStringSubmatch(body); m != nil {
		cfg.ClientID = m[1]
	}
	if m := reOrgID.FindStringSubmatch(body); m != nil {
		cfg.OrganizationID = m[1]
	}
	if m := reSiteID.FindStringSubmatch(body); m != nil {
		cfg.SiteID = m[1]
	}
	if m := reCategory.FindStringSubmatch(body); m != nil {
		cfg.SearchState["cgid"] = m[1]
	}
	if m := reLocale.FindStringSubmatch(body); m != nil {
		cfg.SearchState["locale"] = m[1]
	}

	return cfg
}
