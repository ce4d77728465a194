package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/padlock/pkg/cache"
	"github.com/matzehuels/padlock/pkg/observability"
)

// httpTimeout bounds a single registry request.
const httpTimeout = 30 * time.Second

// ErrNotFound is returned for 404 responses.
var ErrNotFound = fmt.Errorf("resource not found")

// NewHTTPClient creates an HTTP client with a standard timeout for
// registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// Client performs cached, retried GET requests against a registry.
type Client struct {
	http  *http.Client
	cache cache.Cache
	ttl   time.Duration
}

// NewClient wraps an HTTP client with response caching. A nil byteCache
// disables caching (equivalent to a null cache). A ttl of 0 caches
// forever.
func NewClient(httpClient *http.Client, byteCache cache.Cache, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if byteCache == nil {
		byteCache = cache.NewNullCache()
	}
	return &Client{http: httpClient, cache: byteCache, ttl: ttl}
}

// Get fetches url, consulting the cache first unless refresh is set.
// 404 responses map to [ErrNotFound]; 5xx and transport failures are
// retried with backoff before being reported.
func (c *Client) Get(ctx context.Context, url string, refresh bool) ([]byte, error) {
	if !refresh {
		if data, hit, err := c.cache.Get(ctx, url); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, url)
			return data, nil
		}
		observability.Cache().OnCacheMiss(ctx, url)
	}

	var body []byte
	err := RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return Retryable(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.StatusCode >= 500:
			return Retryable(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, url, body, c.ttl); err == nil {
		observability.Cache().OnCacheSet(ctx, url, len(body))
	}
	return body, nil
}
