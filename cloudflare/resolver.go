package cloudflare

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Request carries the context of a blocked fetch to a solver.
type Request struct {
	URL        string
	Headers    map[string]string
	Reason     BlockReason
	StatusCode int
	Body       string
}

// Resolver obtains real page HTML for a blocked request. The boolean is
// false on any failure; resolvers never return errors.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (string, bool)
}

const (
	scrapingBeeDefaultBaseURL = "https://app.scrapingbee.com/api/v1/"
	maxForwardedBodyLength    = 64 * 1024
	defaultSolverTimeout      = 15 * time.Second
)

// Config selects and parameterizes the solver backends. It is resolved once
// at startup; the fetch path only ever sees the Resolver built from it.
type Config struct {
	Provider string

	ScrapingBeeAPIKey         string
	ScrapingBeeBaseURL        string
	ScrapingBeeRenderJS       string
	ScrapingBeeCountryCode    string
	ScrapingBeePremiumProxy   string
	ScrapingBeeBlockResources string

	CollectorURL      string
	CollectorToken    string
	CollectorUsername string
	CollectorPassword string

	CustomEndpointURL string
	CustomAPIKey      string

	SolverURL     string
	SolverAPIKey  string
	SolverTimeout time.Duration
}

// ConfigFromEnv reads the solver configuration from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Provider: strings.ToLower(os.Getenv("MERCHANT_SOLVER_PROVIDER")),

		ScrapingBeeAPIKey:         os.Getenv("SCRAPINGBEE_API_KEY"),
		ScrapingBeeBaseURL:        os.Getenv("SCRAPINGBEE_BASE_URL"),
		ScrapingBeeRenderJS:       os.Getenv("SCRAPINGBEE_RENDER_JS"),
		ScrapingBeeCountryCode:    os.Getenv("SCRAPINGBEE_COUNTRY_CODE"),
		ScrapingBeePremiumProxy:   os.Getenv("SCRAPINGBEE_PREMIUM_PROXY"),
		ScrapingBeeBlockResources: os.Getenv("SCRAPINGBEE_BLOCK_RESOURCES"),

		CollectorURL:      os.Getenv("BRIGHTDATA_COLLECTOR_URL"),
		CollectorToken:    os.Getenv("BRIGHTDATA_API_TOKEN"),
		CollectorUsername: os.Getenv("BRIGHTDATA_USERNAME"),
		CollectorPassword: os.Getenv("BRIGHTDATA_PASSWORD"),

		CustomEndpointURL: os.Getenv("MERCHANT_SOLVER_ENDPOINT"),
		CustomAPIKey:      os.Getenv("MERCHANT_SOLVER_API_KEY"),

		SolverURL:    os.Getenv("CLOUDFLARE_FALLBACK_URL"),
		SolverAPIKey: os.Getenv("CLOUDFLARE_FALLBACK_API_KEY"),
	}

	if cfg.CollectorURL == "" {
		cfg.CollectorURL = cfg.CustomEndpointURL
	}
	if cfg.CollectorToken == "" {
		cfg.CollectorToken = cfg.CustomAPIKey
	}

	if raw := os.Getenv("CLOUDFLARE_FALLBACK_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.SolverTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

// NewResolver builds the resolver chain for a config: the provider-selected
// backend first, then the simple solver-URL fallback. Returns nil when
// nothing is configured.
func NewResolver(cfg Config, logger *zap.Logger) Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: defaultSolverTimeout}

	var resolvers []Resolver

	switch cfg.Provider {
	case "scrapingbee":
		if cfg.ScrapingBeeAPIKey != "" {
			resolvers = append(resolvers, &scrapingBeeResolver{cfg: cfg, client: httpClient, logger: logger})
		}
	case "brightdata":
		if cfg.CollectorURL != "" {
			resolvers = append(resolvers, &endpointResolver{
				endpoint: cfg.CollectorURL,
				headers:  collectorAuthHeaders(cfg),
				client:   httpClient,
				logger:   logger,
			})
		}
	case "browser", "custom", "http":
		if cfg.CustomEndpointURL != "" {
			headers := map[string]string{}
			if cfg.CustomAPIKey != "" {
				headers["Authorization"] = "Bearer " + cfg.CustomAPIKey
			}
			resolvers = append(resolvers, &endpointResolver{
				endpoint: cfg.CustomEndpointURL,
				headers:  headers,
				client:   httpClient,
				logger:   logger,
			})
		}
	}

	if cfg.SolverURL != "" {
		timeout := cfg.SolverTimeout
		if timeout <= 0 {
			timeout = defaultSolverTimeout
		}
		resolvers = append(resolvers, &solverURLResolver{
			url:    cfg.SolverURL,
			apiKey: cfg.SolverAPIKey,
			client: &http.Client{Timeout: timeout},
			logger: logger,
		})
	}

	if len(resolvers) == 0 {
		return nil
	}
	return chain(resolvers)
}

func collectorAuthHeaders(cfg Config) map[string]string {
	headers := map[string]string{}
	if cfg.CollectorToken != "" {
		headers["Authorization"] = "Bearer " + cfg.CollectorToken
	}
	if cfg.CollectorUsername != "" && cfg.CollectorPassword != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.CollectorUsername + ":" + cfg.CollectorPassword))
		headers["Authorization"] = "Basic " + credentials
	}
	return headers
}

// chain tries each resolver in order; the first HTML wins.
type chain []Resolver

func (c chain) Resolve(ctx context.Context, req Request) (string, bool) {
	for _, r := range c {
		if html, ok := r.Resolve(ctx, req); ok {
			return html, true
		}
	}
	return "", false
}

// scrapingBeeResolver asks a paid rendering API for the target page.
type scrapingBeeResolver struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func (r *scrapingBeeResolver) Resolve(ctx context.Context, req Request) (string, bool) {
	base := r.cfg.ScrapingBeeBaseURL
	requestURL, err := url.Parse(base)
	if base == "" || err != nil {
		requestURL, _ = url.Parse(scrapingBeeDefaultBaseURL)
	}

	renderJS := r.cfg.ScrapingBeeRenderJS
	if renderJS == "" {
		renderJS = "false"
	}

	query := requestURL.Query()
	query.Set("api_key", r.cfg.ScrapingBeeAPIKey)
	query.Set("url", req.URL)
	query.Set("render_js", renderJS)
	if r.cfg.ScrapingBeeCountryCode != "" {
		query.Set("country_code", r.cfg.ScrapingBeeCountryCode)
	}
	if r.cfg.ScrapingBeePremiumProxy != "" {
		query.Set("premium_proxy", r.cfg.ScrapingBeePremiumProxy)
	}
	if r.cfg.ScrapingBeeBlockResources != "" {
		query.Set("block_resources", r.cfg.ScrapingBeeBlockResources)
	}
	requestURL.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return "", false
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.logger.Debug("scrapingbee solver request failed", zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	return string(body), true
}

// endpointResolver posts the blocked request to a collector or custom HTTP
// solver endpoint as JSON {url, headers, status, html}.
type endpointResolver struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	logger   *zap.Logger
}

func (r *endpointResolver) Resolve(ctx context.Context, req Request) (string, bool) {
	payload := map[string]any{
		"url":     req.URL,
		"headers": req.Headers,
		"status":  req.StatusCode,
		"html":    req.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range r.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.logger.Debug("solver endpoint request failed", zap.String("endpoint", r.endpoint), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	return htmlFromSolverBody(resp.Header.Get("Content-Type"), raw)
}

// solverURLResolver is the simpler fallback path: one configured solver URL,
// an API-key header and the blocked response forwarded with its body capped.
type solverURLResolver struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func (r *solverURLResolver) Resolve(ctx context.Context, req Request) (string, bool) {
	forwarded := req.Body
	if len(forwarded) > maxForwardedBodyLength {
		forwarded = forwarded[:maxForwardedBodyLength]
	}

	payload := map[string]any{
		"url":          req.URL,
		"headers":      req.Headers,
		"reason":       string(req.Reason),
		"statusCode":   req.StatusCode,
		"originalBody": forwarded,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("x-api-key", r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.logger.Debug("fallback solver request failed", zap.String("url", r.url), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	return htmlFromSolverBody(resp.Header.Get("Content-Type"), raw)
}

// solverHTMLKeys are searched recursively through JSON solver payloads;
// the first match wins.
var solverHTMLKeys = []string{"html", "content", "result", "body", "data"}

func htmlFromSolverBody(contentType string, raw []byte) (string, bool) {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var payload any
		if err := json.Unmarshal(raw, &payload); err == nil {
			if html, ok := extractHTMLValue(payload); ok {
				return html, true
			}
		}
	}

	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func extractHTMLValue(payload any) (string, bool) {
	switch value := payload.(type) {
	case string:
		if strings.TrimSpace(value) != "" {
			return value, true
		}
	case map[string]any:
		for _, key := range solverHTMLKeys {
			if candidate, exists := value[key]; exists {
				if text, ok := candidate.(string); ok && strings.TrimSpace(text) != "" {
					return text, true
				}
			}
		}
		for _, nested := range value {
			if _, isMap := nested.(map[string]any); isMap {
				if html, ok := extractHTMLValue(nested); ok {
					return html, true
				}
			}
		}
	}
	return "", false
}
