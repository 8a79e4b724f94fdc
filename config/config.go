// Package config resolves all environment and file configuration once at
// startup into plain value structs. Components receive those values at
// construction time and never read the environment themselves.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service-level configuration.
type Config struct {
	ServerPort string
	ServerHost string

	CacheTTL       time.Duration
	CacheSize      int
	RateLimit      time.Duration
	MaxConcurrency int

	LogLevel    string
	DocsEnabled bool

	AppName    string
	AppVersion string
}

// Load reads the service configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "3001"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_MS", 5*60*1000)) * time.Millisecond,
		CacheSize:      getEnvInt("CACHE_MAX_ENTRIES", 50),
		RateLimit:      time.Duration(getEnvInt("RATE_LIMIT_MS", 500)) * time.Millisecond,
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DocsEnabled:    getEnvBool("DOCS_ENABLED", true),
		AppName:        "atlas-taman",
		AppVersion:     getEnv("APP_VERSION", "dev"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Address returns the full listen address.
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// Merchant is the resolved per-merchant HTTP configuration: hard defaults
// layered with optional file overrides and X_* environment overrides.
type Merchant struct {
	SearchURL    string
	QueryParam   string
	Currency     string
	Headers      map[string]string
	StaticParams map[string]string
	Delay        time.Duration
	Timeout      time.Duration
	ProxyURL     string
}

// ResolveMerchant applies environment overrides for a merchant id on top of
// its defaults. For merchant id "electroplanet" the recognized variables are
// ELECTROPLANET_SEARCH_URL, ELECTROPLANET_QUERY_PARAM, and so on.
func ResolveMerchant(id string, defaults Merchant) Merchant {
	prefix := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(id))
	cfg := defaults

	if v := os.Getenv(prefix + "_SEARCH_URL"); v != "" {
		cfg.SearchURL = v
	}
	if v := os.Getenv(prefix + "_QUERY_PARAM"); v != "" {
		cfg.QueryParam = v
	}
	if v := os.Getenv(prefix + "_CURRENCY"); v != "" {
		cfg.Currency = strings.ToUpper(v)
	}
	if v := os.Getenv(prefix + "_HEADERS"); v != "" {
		if headers := ParseKeyValues(v, false); len(headers) > 0 {
			cfg.Headers = headers
		}
	}
	if v := os.Getenv(prefix + "_STATIC_PARAMS"); v != "" {
		if params := ParseKeyValues(v, true); len(params) > 0 {
			cfg.StaticParams = params
		}
	}
	if ms := getEnvInt(prefix+"_DELAY_MS", -1); ms >= 0 {
		cfg.Delay = time.Duration(ms) * time.Millisecond
	}
	if ms := getEnvInt(prefix+"_TIMEOUT_MS", -1); ms >= 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(prefix + "_PROXY_URL"); v != "" {
		cfg.ProxyURL = v
	}

	return cfg
}

// ParseKeyValues parses either a JSON object or the "key:value;key:value"
// fallback syntax. When decodeValues is set, values are URL-decoded (used
// for static query parameters).
func ParseKeyValues(raw string, decodeValues bool) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	result := map[string]string{}

	if strings.HasPrefix(raw, "{") {
		var decoded map[string]string
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			for k, v := range decoded {
				result[k] = maybeDecode(v, decodeValues)
			}
			return result
		}
	}

	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		result[strings.TrimSpace(key)] = maybeDecode(strings.TrimSpace(value), decodeValues)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func maybeDecode(value string, decode bool) string {
	if !decode {
		return value
	}
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

// GoogleProducts configures the generic product-search API integration.
// The integration is enabled only when both APIURL and APIKey are set.
type GoogleProducts struct {
	APIURL           string
	APIKey           string
	APIKeyQueryParam string
	APIKeyHeaderName string
	SearchEngineID   string
	Country          string
	Language         string
	ResultsLimit     int
	Timeout          time.Duration
	DefaultCurrency  string
	MerchantURL      string
}

// ResolveGoogleProducts reads the integration configuration from the
// environment. Returns nil when the integration is not configured.
func ResolveGoogleProducts() *GoogleProducts {
	apiURL := os.Getenv("GOOGLE_PRODUCTS_API_URL")
	apiKey := os.Getenv("GOOGLE_PRODUCTS_API_KEY")
	if apiURL == "" || apiKey == "" {
		return nil
	}

	return &GoogleProducts{
		APIURL:           apiURL,
		APIKey:           apiKey,
		APIKeyQueryParam: getEnv("GOOGLE_PRODUCTS_API_KEY_PARAM", "key"),
		APIKeyHeaderName: os.Getenv("GOOGLE_PRODUCTS_API_KEY_HEADER"),
		SearchEngineID:   os.Getenv("GOOGLE_PRODUCTS_SEARCH_ENGINE_ID"),
		Country:          os.Getenv("GOOGLE_PRODUCTS_COUNTRY"),
		Language:         os.Getenv("GOOGLE_PRODUCTS_LANGUAGE"),
		ResultsLimit:     getEnvInt("GOOGLE_PRODUCTS_RESULTS_LIMIT", 0),
		Timeout:          time.Duration(getEnvInt("GOOGLE_PRODUCTS_TIMEOUT_MS", 0)) * time.Millisecond,
		DefaultCurrency:  strings.ToUpper(getEnv("GOOGLE_PRODUCTS_DEFAULT_CURRENCY", "MAD")),
		MerchantURL:      getEnv("GOOGLE_PRODUCTS_MERCHANT_URL", "https://www.google.com/shopping"),
	}
}

// MerchantOverride is one entry of the optional merchants YAML file. It can
// replace profile fields and search defaults before env overrides apply.
type MerchantOverride struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	LogoURL    string `yaml:"logo_url"`
	City       string `yaml:"city"`
	SearchURL  string `yaml:"search_url"`
	QueryParam string `yaml:"query_param"`
	Currency   string `yaml:"currency"`
}

type merchantFile struct {
	Merchants map[string]MerchantOverride `yaml:"merchants"`
}

// LoadMerchantOverrides loads the optional merchants YAML file. A missing
// file is not an error; a malformed one is.
func LoadMerchantOverrides(path string) (map[string]MerchantOverride, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read merchants file: %w", err)
	}

	var file merchantFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse merchants file: %w", err)
	}
	return file.Merchants, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal
		}
		return i
	}
	return defaultVal
}
