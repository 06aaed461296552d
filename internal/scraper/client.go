// internal/scraper/client.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/fetchlab/cataloger/internal/monitoring"
	"github.com/fetchlab/cataloger/internal/utils"
)

// Sentinel errors surfaced by the fetch layer. Both abandon the current
// task only, never the run.
var (
	// ErrBlocked marks a blocking response (403/429) that survived the
	// retry budget.
	ErrBlocked = errors.New("request blocked by target site")
	// ErrProxyAuth marks a proxy authentication failure. The proxy circuit
	// is already open when this is returned.
	ErrProxyAuth = errors.New("proxy authentication failed")
)

// proxyAuthSignatures are error-text fragments treated as proxy
// authentication failures in addition to HTTP 407/597.
var proxyAuthSignatures = []string{
	"proxy authentication required",
	"407 proxy",
	"proxyconnect",
	"auth failed",
	"err_proxy",
}

// FetchResult is the outcome of one successful page fetch.
type FetchResult struct {
	StatusCode int
	Body       string
	ViaProxy   bool
	FromCache  bool
}

// Fetcher is the fetch primitive the channels and the orchestrator depend
// on. The concrete Client adds resilience around it; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// ClientConfig defines fetch layer behavior.
type ClientConfig struct {
	Timeout           time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	Burst             int
	ProxyURL          string
	Headers           map[string]string
	UserAgents        []string
	CacheSize         int
	// Transport overrides the HTTP transport for both clients; tests use
	// this to mock responses.
	Transport http.RoundTripper
}

// Client is the fetch resilience layer. It wraps plain HTTP with user-agent
// session rotation, bounded retries with backoff, a request rate limiter, a
// small LRU body cache, and the one-way proxy circuit: once proxy
// authentication fails, every later request in the run goes direct.
type Client struct {
	direct  *http.Client
	proxied *http.Client

	cfg     ClientConfig
	limiter *rate.Limiter
	state   *RunState
	cache   *lru.Cache[string, string]
	log     utils.Logger
	metrics *monitoring.Metrics

	sessionMu sync.Mutex
	uaIndex   int
	sessionID string
}

// NewClient builds the fetch layer. state carries the proxy circuit latch;
// metrics may be nil.
func NewClient(cfg ClientConfig, state *RunState, log utils.Logger, metrics *monitoring.Metrics) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents()
	}

	transport := func(proxy *url.URL) http.RoundTripper {
		if cfg.Transport != nil {
			return cfg.Transport
		}
		t := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		if proxy != nil {
			t.Proxy = http.ProxyURL(proxy)
		}
		return t
	}

	c := &Client{
		direct:    &http.Client{Timeout: cfg.Timeout, Transport: transport(nil)},
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		state:     state,
		log:       log,
		metrics:   metrics,
		sessionID: newSessionID(),
	}

	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	c.cache = cache

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		c.proxied = &http.Client{Timeout: cfg.Timeout, Transport: transport(proxyURL)}
	}

	return c, nil
}

// Fetch performs a GET with retries and failure classification. Blocking
// responses rotate the session and count against the retry budget; proxy
// authentication failures open the circuit so the retry already goes direct.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if body, ok := c.cache.Get(rawURL); ok {
		return &FetchResult{StatusCode: http.StatusOK, Body: body, FromCache: true}, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		res, retry, err := c.doOnce(ctx, rawURL)
		if err == nil {
			c.cache.Add(rawURL, res.Body)
			return res, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.RetryAttempts {
			break
		}
		c.metrics.RequestRetried()
		c.waitForRetry(ctx, attempt)
	}

	return nil, lastErr
}

// doOnce performs a single attempt and classifies the outcome. The second
// return value reports whether the failure is retryable.
func (c *Client) doOnce(ctx context.Context, rawURL string) (*FetchResult, bool, error) {
	viaProxy := c.proxied != nil && !c.state.ProxyCircuitOpen()
	client := c.direct
	if viaProxy {
		client = c.proxied
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setRequestHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		if isProxyAuthError(err) {
			c.openCircuit(rawURL)
			return nil, true, fmt.Errorf("%w: %v", ErrProxyAuth, err)
		}
		c.metrics.RequestFailed("transport")
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RequestCompleted(resp.StatusCode, viaProxy)

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		c.rotateSession()
		return nil, true, fmt.Errorf("%w: HTTP %d", ErrBlocked, resp.StatusCode)

	case resp.StatusCode == http.StatusProxyAuthRequired || resp.StatusCode == 597:
		c.openCircuit(rawURL)
		c.rotateSession()
		return nil, true, fmt.Errorf("%w: HTTP %d", ErrProxyAuth, resp.StatusCode)

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: HTTP %d", resp.StatusCode)

	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		ViaProxy:   viaProxy,
	}, false, nil
}

// openCircuit latches the proxy circuit. Idempotent; the first failure wins.
func (c *Client) openCircuit(rawURL string) {
	if c.state.ProxyCircuitOpen() {
		return
	}
	c.state.OpenProxyCircuit()
	c.metrics.ProxyCircuitOpened()
	c.log.WithField("url", rawURL).Warn("proxy authentication failed, disabling proxy for the rest of the run")
}

// rotateSession invalidates the current browsing identity: next user agent,
// fresh session id header.
func (c *Client) rotateSession() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.uaIndex = (c.uaIndex + 1) % len(c.cfg.UserAgents)
	c.sessionID = newSessionID()
	c.metrics.SessionRotated()
}

func (c *Client) setRequestHeaders(req *http.Request) {
	c.sessionMu.Lock()
	ua := c.cfg.UserAgents[c.uaIndex]
	session := c.sessionID
	c.sessionMu.Unlock()

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.AddCookie(&http.Cookie{Name: "sid", Value: session})

	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}
}

// waitForRetry sleeps with exponential backoff plus jitter, honoring
// context cancellation.
func (c *Client) waitForRetry(ctx context.Context, attempt int) {
	delay := c.cfg.RetryDelay * time.Duration(1<<uint(attempt))
	delay += time.Duration(rand.Int63n(int64(c.cfg.RetryDelay)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// isProxyAuthError matches transport error text against the known proxy
// authentication failure signatures.
func isProxyAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range proxyAuthSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func newSessionID() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 16)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return string(b)
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}
}
