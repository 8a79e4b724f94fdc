// Package aggregator fans a query out to every merchant integration,
// collects their offers, groups them into products and caches the result.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"atlas-taman/integrations"
	"atlas-taman/metrics"
	"atlas-taman/models"
	"atlas-taman/textutil"
)

const (
	cacheKeyPrefix = "search:"
	cacheKeyAll    = "search:__all__"

	defaultCategory = "Divers"
)

// Options tunes the aggregation pipeline.
type Options struct {
	CacheTTL       time.Duration
	CacheSize      int
	RateLimit      time.Duration
	MaxConcurrency int
}

// Aggregator runs searches across all registered integrations.
type Aggregator struct {
	integrations []integrations.MerchantIntegration
	cache        *responseCache
	gate         *rateGate
	semaphore    chan struct{}
	logger       *zap.Logger

	now func() time.Time
}

// New builds an aggregator over a fixed integration roster. Metrics and
// errors in responses follow the roster's registration order.
func New(roster []integrations.MerchantIntegration, opts Options, logger *zap.Logger) *Aggregator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 50
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		integrations: roster,
		cache:        newResponseCache(opts.CacheTTL, opts.CacheSize),
		gate:         newRateGate(opts.RateLimit),
		semaphore:    make(chan struct{}, opts.MaxConcurrency),
		logger:       logger,
		now:          time.Now,
	}
}

// Search runs a query across every integration. One merchant failing never
// fails the whole search; its error is reported alongside the other
// merchants' products. Responses are served from cache within the TTL.
func (a *Aggregator) Search(ctx context.Context, query string) (*models.AggregationResponse, error) {
	normalized := textutil.NormalizeQuery(query)
	cacheKey := cacheKeyAll
	if normalized != "" {
		cacheKey = cacheKeyPrefix + normalized
	}

	if cached := a.cache.Get(cacheKey); cached != nil {
		metrics.CacheHits.Inc()
		response := cached.Clone()
		response.Metadata.FromCache = true
		return response, nil
	}
	metrics.CacheMisses.Inc()

	started := a.now()
	runs := a.run(ctx, normalized)

	var (
		offers            []models.MerchantOffer
		integrationErrors []models.IntegrationError
		runMetrics        = make([]models.IntegrationMetric, len(runs))
	)
	for i, run := range runs {
		integration := a.integrations[i]
		valid := filterValid(run.offers)
		metric := models.IntegrationMetric{
			ID:         integration.ID(),
			Label:      integration.Label(),
			DurationMs: run.duration.Milliseconds(),
			Offers:     len(valid),
			Status:     models.StatusFulfilled,
		}
		if run.err != nil {
			metric.Status = models.StatusRejected
			metric.Error = run.err.Error()
			integrationErrors = append(integrationErrors, models.IntegrationError{
				MerchantID:   integration.ID(),
				MerchantName: integration.Label(),
				Message:      run.err.Error(),
			})
			a.logger.Warn("integration failed",
				zap.String("merchant", integration.ID()),
				zap.Error(run.err))
		}
		metrics.MerchantScrapes.WithLabelValues(integration.ID(), metric.Status).Inc()
		metrics.MerchantScrapeDuration.WithLabelValues(integration.ID()).Observe(run.duration.Seconds())

		runMetrics[i] = metric
		offers = append(offers, valid...)
	}

	response := &models.AggregationResponse{
		Products: groupOffers(offers),
		Errors:   integrationErrors,
		Metadata: models.AggregationMetadata{
			Query:        normalized,
			FromCache:    false,
			TookMs:       a.now().Sub(started).Milliseconds(),
			GeneratedAt:  a.now().UTC(),
			Integrations: runMetrics,
		},
	}

	a.cache.Set(cacheKey, response.Clone())
	return response, nil
}

// ListProducts returns the full catalog, which is the empty-query search.
func (a *Aggregator) ListProducts(ctx context.Context) (*models.AggregationResponse, error) {
	return a.Search(ctx, "")
}

type integrationRun struct {
	offers   []models.MerchantOffer
	err      error
	duration time.Duration
}

// run executes every integration concurrently, bounded by the semaphore and
// the per-merchant rate gate. Results land in registration order.
func (a *Aggregator) run(ctx context.Context, query string) []integrationRun {
	runs := make([]integrationRun, len(a.integrations))

	var wg sync.WaitGroup
	for i, integration := range a.integrations {
		wg.Add(1)
		go func(i int, integration integrations.MerchantIntegration) {
			defer wg.Done()

			select {
			case a.semaphore <- struct{}{}:
				defer func() { <-a.semaphore }()
			case <-ctx.Done():
				runs[i].err = ctx.Err()
				return
			}

			if err := a.gate.Wait(ctx, integration.ID()); err != nil {
				runs[i].err = err
				return
			}

			started := a.now()
			offers, err := integration.Search(ctx, query)
			runs[i] = integrationRun{
				offers:   offers,
				err:      err,
				duration: a.now().Sub(started),
			}
		}(i, integration)
	}
	wg.Wait()

	return runs
}

// productBuilder accumulates one slug group. Insertion order of groups is
// preserved so product order is deterministic before the final sort.
type productBuilder struct {
	slug      string
	name      string
	brand     string
	category  string
	images    []string
	imageSeen map[string]bool
	earliest  time.Time
	offers    []models.AggregatedOffer
}

// filterValid keeps offers with a positive price that are not explicitly out
// of stock. It runs per merchant so reported offer counts match what reaches
// grouping.
func filterValid(offers []models.MerchantOffer) []models.MerchantOffer {
	valid := make([]models.MerchantOffer, 0, len(offers))
	for _, offer := range offers {
		if offer.Price <= 0 || offer.Availability == models.AvailabilityOutOfStock {
			continue
		}
		valid = append(valid, offer)
	}
	return valid
}

// groupOffers clusters already-validated offers by slug and shapes them into
// products.
func groupOffers(offers []models.MerchantOffer) []models.AggregatedProduct {
	builders := make(map[string]*productBuilder)
	var order []string

	for _, offer := range offers {
		// Slugify is idempotent, so already-normalized slugs pass through
		// while URL-shaped ones collapse onto their title-derived twins.
		slug := textutil.Slugify(offer.Slug)
		if slug == "" {
			slug = textutil.Slugify(offer.Title)
		}
		if slug == "" {
			continue
		}

		builder, ok := builders[slug]
		if !ok {
			builder = &productBuilder{slug: slug, imageSeen: make(map[string]bool), earliest: offer.ScrapedAt}
			builders[slug] = builder
			order = append(order, slug)
		}
		builder.add(offer)
	}

	products := make([]models.AggregatedProduct, 0, len(order))
	for _, slug := range order {
		products = append(products, builders[slug].build())
	}

	sort.SliceStable(products, func(i, j int) bool {
		if products[i].MinTotalPrice != products[j].MinTotalPrice {
			return products[i].MinTotalPrice < products[j].MinTotalPrice
		}
		return products[i].Name < products[j].Name
	})
	return products
}

func (b *productBuilder) add(offer models.MerchantOffer) {
	if b.name == "" {
		b.name = offer.Title
	}
	if b.brand == "" {
		b.brand = offer.Brand
	}
	if b.category == "" {
		b.category = offer.Category
	}
	if offer.Image != "" && !b.imageSeen[offer.Image] {
		b.imageSeen[offer.Image] = true
		b.images = append(b.images, offer.Image)
	}
	if offer.ScrapedAt.Before(b.earliest) {
		b.earliest = offer.ScrapedAt
	}

	b.offers = append(b.offers, models.AggregatedOffer{
		ID:          offer.OfferID,
		Price:       offer.Price,
		TotalPrice:  offer.TotalPrice(),
		Currency:    offer.Currency,
		ShippingFee: offer.ShippingFee,
		IsAvailable: offer.Availability != models.AvailabilityOutOfStock,
		URL:         offer.URL,
		Merchant:    offer.Merchant,
		CreatedAt:   offer.ScrapedAt,
		UpdatedAt:   offer.ScrapedAt,
	})
}

func (b *productBuilder) build() models.AggregatedProduct {
	sort.SliceStable(b.offers, func(i, j int) bool {
		return b.offers[i].TotalPrice < b.offers[j].TotalPrice
	})

	minPrice, maxPrice := b.offers[0].Price, b.offers[0].Price
	for _, offer := range b.offers[1:] {
		if offer.Price < minPrice {
			minPrice = offer.Price
		}
		if offer.Price > maxPrice {
			maxPrice = offer.Price
		}
	}

	category := b.category
	if category == "" {
		category = defaultCategory
	}

	images := b.images
	if images == nil {
		images = []string{}
	}

	return models.AggregatedProduct{
		ID:             b.slug,
		Name:           b.name,
		Slug:           b.slug,
		Brand:          b.brand,
		Category:       category,
		CategorySlug:   textutil.Slugify(category),
		Images:         images,
		MinPrice:       minPrice,
		MaxPrice:       maxPrice,
		MinTotalPrice:  b.offers[0].TotalPrice,
		OffersCount:    len(b.offers),
		Offers:         b.offers,
		Specifications: map[string]string{},
		CreatedAt:      b.earliest,
	}
}
