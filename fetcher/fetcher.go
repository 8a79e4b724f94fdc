// Package fetcher issues the outbound merchant requests. It merges default
// browser-like headers with per-merchant overrides, enforces per-request
// timeouts, optionally dispatches through a proxy, and classifies responses
// through the challenge detector before handing them to the extractors.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"atlas-taman/cloudflare"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config is the per-request fetch configuration.
type Config struct {
	Headers  map[string]string
	Timeout  time.Duration
	ProxyURL string
}

// Result is the outcome of a fetch. When Blocked is true the original
// response was an anti-bot challenge; FallbackHTML carries the solver's HTML
// when a resolver could bypass it, and is empty when none could.
type Result struct {
	StatusCode   int
	Header       http.Header
	Body         []byte
	Blocked      bool
	FallbackHTML string
	SentHeaders  map[string]string
}

// TimeoutError reports a fetch aborted by its deadline. It is distinct from
// ordinary network errors so extractors can surface it as such.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s fetching %s", e.Timeout, e.URL)
}

// HTTPError reports a merchant response that could not be used, carrying the
// status and the merchant it belongs to.
type HTTPError struct {
	MerchantID string
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("merchant %s responded with HTTP %d for %s", e.MerchantID, e.StatusCode, e.URL)
}

// Client performs fetches and consults the challenge resolver when blocked.
type Client struct {
	httpClient *http.Client
	resolver   cloudflare.Resolver
	logger     *zap.Logger
}

// New creates a fetch client. The resolver may be nil when no solver backend
// is configured.
func New(resolver cloudflare.Resolver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{},
		resolver:   resolver,
		logger:     logger,
	}
}

// FetchWithConfig fetches a URL with merged headers, optional timeout and
// proxy, and classifies the response. Blocked responses trigger the fallback
// resolver; its HTML, when available, replaces the challenge body.
func (c *Client) FetchWithConfig(ctx context.Context, rawURL string, cfg Config) (*Result, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch URL %q: %w", rawURL, err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}

	// Defaults first, caller overrides second; http.Header canonicalizes
	// names, which gives the case-insensitive precedence.
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-MA,fr;q=0.9,ar;q=0.8,en;q=0.7")
	req.Header.Set("Referer", target.Scheme+"://"+target.Host+"/")
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	sentHeaders := make(map[string]string, len(req.Header))
	for key := range req.Header {
		sentHeaders[key] = req.Header.Get(key)
	}

	client := c.httpClient
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.ProxyURL, err)
		}
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxy)}}
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: rawURL, Timeout: cfg.Timeout}
		}
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{URL: rawURL, Timeout: cfg.Timeout}
		}
		return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}

	result := &Result{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		SentHeaders: sentHeaders,
	}

	detection := cloudflare.Detect(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	if !detection.Blocked {
		return result, nil
	}

	result.Blocked = true
	c.logger.Warn("challenge detected",
		zap.String("url", rawURL),
		zap.String("reason", string(detection.Reason)),
		zap.Int("status", resp.StatusCode))

	if c.resolver != nil {
		if html, ok := c.resolver.Resolve(ctx, cloudflare.Request{
			URL:        rawURL,
			Headers:    sentHeaders,
			Reason:     detection.Reason,
			StatusCode: detection.StatusCode,
			Body:       string(body),
		}); ok {
			result.FallbackHTML = html
		}
	}

	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
