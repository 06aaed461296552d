// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by Validate when fields are unset.
const (
	DefaultCurrency          = "USD"
	DefaultPageSize          = 24
	DefaultConcurrency       = 4
	DefaultRetryAttempts     = 3
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRequestsPerSecond = 2.0
	DefaultPageDelay         = 1500 * time.Millisecond
	DefaultListenAddress     = ":9090"
)

// DefaultStateMarkers are the embedded-state tokens scanned for when the
// config does not override them.
func DefaultStateMarkers() []string {
	return []string{
		`window.__PRELOADED_STATE__ =`,
		`window.__INITIAL_STATE__ =`,
		`"props":`,
	}
}

// DefaultAPIEndpoints are ranked search endpoint templates tried in order.
func DefaultAPIEndpoints() []string {
	return []string{
		"https://{shortCode}.api.commercecloud.salesforce.com/search/shopper-search/v1/organizations/{organizationId}/product-search",
		"https://{shortCode}.api.commercecloud.salesforce.com/search/shopper-search/v2/organizations/{organizationId}/product-search",
	}
}

// LoadFromFile reads and parses a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and fills in defaults. It mutates the
// receiver so callers can rely on every field being populated afterwards.
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = "cataloger"
	}

	if len(c.Target.SeedURLs) == 0 {
		return fmt.Errorf("target.seed_urls: at least one seed URL is required")
	}
	for i, seed := range c.Target.SeedURLs {
		u, err := url.Parse(seed)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("target.seed_urls[%d]: %q is not an absolute URL", i, seed)
		}
	}

	if c.Site.Origin == "" {
		// Derive the origin from the first seed when unset.
		u, _ := url.Parse(c.Target.SeedURLs[0])
		c.Site.Origin = u.Scheme + "://" + u.Host
	}
	if u, err := url.Parse(c.Site.Origin); err != nil || !u.IsAbs() {
		return fmt.Errorf("site.origin: %q is not an absolute URL", c.Site.Origin)
	}
	if c.Site.Currency == "" {
		c.Site.Currency = DefaultCurrency
	}
	if len(c.Site.StateMarkers) == 0 {
		c.Site.StateMarkers = DefaultStateMarkers()
	}
	if len(c.Site.APIEndpoints) == 0 {
		c.Site.APIEndpoints = DefaultAPIEndpoints()
	}

	if c.Filters.MinPrice < 0 || c.Filters.MaxPrice < 0 {
		return fmt.Errorf("filters: price bounds cannot be negative")
	}
	if c.Filters.MaxPrice > 0 && c.Filters.MinPrice > c.Filters.MaxPrice {
		return fmt.Errorf("filters: min_price %.2f exceeds max_price %.2f",
			c.Filters.MinPrice, c.Filters.MaxPrice)
	}

	if c.Limits.MaxItems < 0 {
		return fmt.Errorf("limits.max_items cannot be negative")
	}
	if c.Limits.MaxPages < 0 {
		return fmt.Errorf("limits.max_pages cannot be negative")
	}
	if c.Limits.PageSize <= 0 {
		c.Limits.PageSize = DefaultPageSize
	}
	if c.Limits.Concurrency <= 0 {
		c.Limits.Concurrency = DefaultConcurrency
	}
	if c.Limits.Concurrency > 10 {
		return fmt.Errorf("limits.concurrency: %d exceeds maximum of 10", c.Limits.Concurrency)
	}
	if c.Limits.RetryAttempts <= 0 {
		c.Limits.RetryAttempts = DefaultRetryAttempts
	}
	if c.Limits.RequestTimeout <= 0 {
		c.Limits.RequestTimeout = DefaultRequestTimeout
	}
	if c.Limits.RequestsPerSecond <= 0 {
		c.Limits.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Limits.PageDelay <= 0 {
		c.Limits.PageDelay = DefaultPageDelay
	}

	if c.Proxy.URL != "" {
		if _, err := url.Parse(c.Proxy.URL); err != nil {
			return fmt.Errorf("proxy.url: %w", err)
		}
	}

	if err := c.Output.validate(); err != nil {
		return err
	}

	if c.Monitoring.Enabled && c.Monitoring.ListenAddress == "" {
		c.Monitoring.ListenAddress = DefaultListenAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func (o *OutputConfig) validate() error {
	if o.Format == "" {
		o.Format = "jsonl"
	}

	switch o.Format {
	case "jsonl", "csv", "sqlite", "excel":
		if o.Path == "" {
			return fmt.Errorf("output.path is required for format %q", o.Format)
		}
	case "postgres", "mysql", "mongodb":
		if o.DSN == "" {
			return fmt.Errorf("output.dsn is required for format %q", o.Format)
		}
		if o.Table == "" {
			o.Table = "products"
		}
		if o.Format == "mongodb" && o.Database == "" {
			o.Database = "cataloger"
		}
	default:
		return fmt.Errorf("output.format: unsupported format %q", o.Format)
	}

	return nil
}

// GenerateTemplate returns a starter configuration of the given type.
func GenerateTemplate(templateType string) *Config {
	cfg := &Config{
		Name:    "example-crawl",
		Version: "1.0",
		Target: TargetConfig{
			SeedURLs: []string{"https://www.example.com/c/shoes"},
			Locale:   "en_US",
		},
		Site: SiteConfig{
			Origin:   "https://www.example.com",
			Currency: DefaultCurrency,
		},
		Limits: LimitsConfig{
			MaxItems:    200,
			MaxPages:    10,
			PageSize:    DefaultPageSize,
			Concurrency: DefaultConcurrency,
		},
		Output: OutputConfig{
			Format: "jsonl",
			Path:   "products.jsonl",
		},
	}

	if templateType == "ecommerce" {
		cfg.Description = "E-commerce catalog crawl with detail follow-up and filters"
		cfg.FollowDetails = true
		cfg.Filters = FilterConfig{
			Brands:   []string{"adidas"},
			MinPrice: 20,
			MaxPrice: 200,
		}
		cfg.Monitoring = MonitoringConfig{
			Enabled:       true,
			ListenAddress: DefaultListenAddress,
		}
	}

	return cfg
}
