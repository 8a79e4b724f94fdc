// Package metrics defines the Prometheus collectors for the aggregation
// pipeline and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MerchantScrapes counts merchant executions by outcome.
	MerchantScrapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_merchant_scrapes_total",
			Help: "Total merchant scrape executions by merchant and status",
		},
		[]string{"merchant", "status"},
	)

	// MerchantScrapeDuration observes per-merchant scrape latency.
	MerchantScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_merchant_scrape_duration_seconds",
			Help:    "Merchant scrape duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"merchant"},
	)

	// MerchantOffers counts offers extracted per merchant.
	MerchantOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_merchant_offers_total",
			Help: "Total offers extracted per merchant",
		},
		[]string{"merchant"},
	)

	// ChallengesDetected counts anti-bot challenges by merchant and whether a
	// solver produced usable HTML.
	ChallengesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_challenges_detected_total",
			Help: "Anti-bot challenges detected by merchant and resolution outcome",
		},
		[]string{"merchant", "resolved"},
	)

	// CacheHits counts aggregation cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_cache_hits_total",
			Help: "Aggregation cache hits",
		},
	)

	// CacheMisses counts aggregation cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_cache_misses_total",
			Help: "Aggregation cache misses",
		},
	)

	// HTTPRequests counts API requests by route, method and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration observes API request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// PanicsRecovered counts panics caught by the recovery middleware.
	PanicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_panics_recovered_total",
			Help: "Total number of recovered panics",
		},
	)
)
