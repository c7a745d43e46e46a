// Package websearchclient implements the google_scholar discovery strategy's
// search backend, adapted directly from internal/tools/web/search.go's
// SearXNG-backed web_search tool: same token-bucket rate limiter, same
// JSON-first/HTML-fallback parsing, generalized from a tool-call surface to
// a plain Go client and retargeted at a scholarly search backend.
package websearchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"manifold/internal/retry"
	"manifold/internal/trialerr"
)

// Result is one search hit (title + landing URL).
type Result struct {
	Title string
	URL   string
}

type tokenBucket struct {
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refillRate: refillRate}
}

func (tb *tokenBucket) takeToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		tokensToAdd := int(elapsed / tb.refillRate)
		if tokensToAdd > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
			tb.refillAt = tb.refillAt.Add(time.Duration(tokensToAdd) * tb.refillRate)
		}
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *tokenBucket) waitForToken(ctx context.Context) error {
	for {
		if tb.takeToken() {
			return nil
		}
		tb.mu.Lock()
		wait := time.Until(tb.refillAt)
		tb.mu.Unlock()
		if wait <= 0 {
			wait = tb.refillRate
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Config configures the search backend. BaseURL points at a SearXNG-style
// meta-search instance capable of a "google scholar" engine/category, kept
// operator-configurable rather than hardcoded to any single provider.
type Config struct {
	BaseURL           string
	Category          string
	RequestsPerSecond float64
	BurstSize         int
	Timeout           time.Duration
}

func (c Config) withDefaults() Config {
	if c.Category == "" {
		c.Category = "science"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 0.5
	}
	if c.BurstSize <= 0 {
		c.BurstSize = 2
	}
	if c.Timeout == 0 {
		c.Timeout = 12 * time.Second
	}
	return c
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

type Client struct {
	http        *http.Client
	baseURL     string
	category    string
	rateLimiter *tokenBucket
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	refillRate := time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		category:    cfg.Category,
		rateLimiter: newTokenBucket(cfg.BurstSize, refillRate),
	}
}

func (c *Client) userAgent() string {
	return userAgents[int(time.Now().UnixNano())%len(userAgents)]
}

// Search runs a scholarly web search for query and returns up to max results.
// It rate-limits itself, then retries transient failures via internal/retry,
// preferring the backend's JSON API and falling back to HTML link scraping.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if err := c.rateLimiter.waitForToken(ctx); err != nil {
		return nil, err
	}

	var results []Result
	err := retry.Do(ctx, retry.DefaultPolicy(), func(attempt int) error {
		r, err := c.searchJSON(ctx, query, max)
		if err == nil && len(r) > 0 {
			results = r
			return nil
		}
		r, herr := c.searchHTML(ctx, query, max)
		if herr == nil && len(r) > 0 {
			results = r
			return nil
		}
		if err != nil {
			return trialerr.Wrap(trialerr.KindWebSearch, "search failed", err)
		}
		return trialerr.Wrap(trialerr.KindWebSearch, "search failed", herr)
	})
	return results, err
}

func (c *Client) searchJSON(ctx context.Context, query string, max int) ([]Result, error) {
	searchURL := fmt.Sprintf("%s/search", c.baseURL)
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("categories", c.category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search backend http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if i >= max {
			break
		}
		out = append(out, Result{Title: strings.TrimSpace(r.Title), URL: r.URL})
	}
	return out, nil
}

func (c *Client) searchHTML(ctx context.Context, query string, max int) ([]Result, error) {
	searchURL := fmt.Sprintf("%s/search", c.baseURL)
	v := url.Values{}
	v.Set("q", query)
	v.Set("categories", c.category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search backend http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	urls := extractLinks(root)
	out := make([]Result, 0, len(urls))
	seen := map[string]struct{}{}
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		title := u
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			title = parsed.Host + parsed.Path
		}
		out = append(out, Result{Title: title, URL: u})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func extractLinks(doc *html.Node) []string {
	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					urls = append(urls, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}
