package nba

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Client fetches basketball data from public providers with a process-local
// TTL cache. All operations return a well-shaped fallback value alongside a
// non-nil error on any fetch or parse failure; callers may always use the
// returned value.
type Client struct {
	httpClient *http.Client
	siteBase   string
	statsBase  string
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data      any
	timestamp time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTTL overrides the cache time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// NewClient creates a sports data client.
func NewClient(siteBaseURL, statsBaseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		siteBase:   siteBaseURL,
		statsBase:  statsBaseURL,
		ttl:        5 * time.Minute,
		cache:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getCached returns the cached value for key if it is still fresh.
func (c *Client) getCached(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) setCached(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, timestamp: time.Now()}
}

// StartJanitor runs a background sweep that removes expired cache entries.
// Readers already ignore stale entries, so the sweep only bounds memory.
func (c *Client) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.pruneExpired()
			case <-ctx.Done():
				slog.Info("Cache janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (c *Client) pruneExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, entry := range c.cache {
		if time.Since(entry.timestamp) >= c.ttl {
			delete(c.cache, key)
			pruned++
		}
	}
	if pruned > 0 {
		slog.Debug("Cache janitor pruned expired entries", "count", pruned)
	}
}

// getJSON issues a single GET and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "courtside/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
