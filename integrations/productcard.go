package integrations

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"atlas-taman/config"
	"atlas-taman/fetcher"
	"atlas-taman/metrics"
	"atlas-taman/models"
	"atlas-taman/textutil"
)

// CardSelectors describes where the offer fields live inside a merchant's
// search result page. Each field is a fallback chain tried in order, since
// merchants ship several card variants on the same page.
type CardSelectors struct {
	Container     string
	ProductIDAttr string
	SlugAttr      string
	Title         []string
	Link          []string
	Price         []string
	PriceAttr     string
	CurrencyAttr  string
	Brand         []string
	Category      []string
	Image         []string
	ImageAttrs    []string
	Shipping      []string
	Availability  []string
}

var defaultImageAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

// ProductCard is a merchant integration backed by an HTML search page made of
// repeated product cards.
type ProductCard struct {
	profile   models.MerchantProfile
	cfg       config.Merchant
	selectors CardSelectors
	client    *fetcher.Client
	logger    *zap.Logger
}

// NewProductCard builds a card-based integration. The search URL must be
// absolute; the caller validates it before construction.
func NewProductCard(profile models.MerchantProfile, cfg config.Merchant, selectors CardSelectors, client *fetcher.Client, logger *zap.Logger) *ProductCard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(selectors.ImageAttrs) == 0 {
		selectors.ImageAttrs = defaultImageAttrs
	}
	return &ProductCard{
		profile:   profile,
		cfg:       cfg,
		selectors: selectors,
		client:    client,
		logger:    logger.With(zap.String("merchant", profile.ID)),
	}
}

func (p *ProductCard) ID() string                      { return p.profile.ID }
func (p *ProductCard) Label() string                   { return p.profile.Name }
func (p *ProductCard) Profile() models.MerchantProfile { return p.profile }

// Search fetches the merchant's search page for a query and extracts its
// offers. A blank query short-circuits without any network call.
func (p *ProductCard) Search(ctx context.Context, query string) ([]models.MerchantOffer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if p.cfg.Delay > 0 {
		timer := time.NewTimer(p.cfg.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	searchURL, err := p.buildSearchURL(query)
	if err != nil {
		return nil, err
	}

	result, err := p.client.FetchWithConfig(ctx, searchURL, fetcher.Config{
		Headers:  p.cfg.Headers,
		Timeout:  p.cfg.Timeout,
		ProxyURL: p.cfg.ProxyURL,
	})
	if err != nil {
		return nil, err
	}

	html := string(result.Body)
	if result.Blocked {
		if result.FallbackHTML == "" {
			metrics.ChallengesDetected.WithLabelValues(p.profile.ID, "false").Inc()
			return nil, &fetcher.HTTPError{MerchantID: p.profile.ID, StatusCode: result.StatusCode, URL: searchURL}
		}
		metrics.ChallengesDetected.WithLabelValues(p.profile.ID, "true").Inc()
		p.logger.Info("using solver html", zap.String("url", searchURL))
		html = result.FallbackHTML
	} else if result.StatusCode >= 400 {
		return nil, &fetcher.HTTPError{MerchantID: p.profile.ID, StatusCode: result.StatusCode, URL: searchURL}
	}

	offers, err := p.extract(html, searchURL)
	if err != nil {
		return nil, err
	}

	metrics.MerchantOffers.WithLabelValues(p.profile.ID).Add(float64(len(offers)))
	return offers, nil
}

func (p *ProductCard) buildSearchURL(query string) (string, error) {
	u, err := url.Parse(p.cfg.SearchURL)
	if err != nil {
		return "", err
	}

	values := u.Query()
	// Static params never clobber values already present in the search URL.
	for key, value := range p.cfg.StaticParams {
		if values.Get(key) == "" {
			values.Set(key, value)
		}
	}
	values.Set(p.cfg.QueryParam, query)
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func (p *ProductCard) extract(html, pageURL string) ([]models.MerchantOffer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var offers []models.MerchantOffer

	doc.Find(p.selectors.Container).Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(firstText(card, p.selectors.Title))
		if title == "" {
			return
		}

		price, currency, ok := p.extractPrice(card)
		if !ok {
			return
		}

		link := p.resolveURL(base, firstAttr(card, p.selectors.Link, []string{"href"}))
		slug := strings.TrimSpace(attrOf(card, p.selectors.SlugAttr))
		if slug == "" {
			slug = textutil.Slugify(title)
		} else {
			slug = textutil.Slugify(slug)
		}

		// Product id, title and price are mandatory; cards missing any of
		// them are skipped, never errored.
		productID := strings.TrimSpace(attrOf(card, p.selectors.ProductIDAttr))
		if productID == "" {
			return
		}

		offer := models.MerchantOffer{
			OfferID:      p.profile.ID + "-" + productID,
			Merchant:     p.profile,
			ProductID:    productID,
			Slug:         slug,
			Title:        title,
			Brand:        strings.TrimSpace(firstText(card, p.selectors.Brand)),
			Category:     strings.TrimSpace(firstText(card, p.selectors.Category)),
			Image:        p.resolveURL(base, firstAttr(card, p.selectors.Image, p.selectors.ImageAttrs)),
			Price:        price,
			Currency:     currency,
			ShippingFee:  parseShipping(firstText(card, p.selectors.Shipping)),
			Availability: textutil.ParseAvailability(firstText(card, p.selectors.Availability)),
			URL:          link,
			ScrapedAt:    now,
		}
		if offer.URL == "" {
			offer.URL = p.profile.URL
		}

		offers = append(offers, offer)
	})

	return offers, nil
}

func (p *ProductCard) extractPrice(card *goquery.Selection) (float64, string, bool) {
	for _, selector := range p.selectors.Price {
		node := card.Find(selector).First()
		if node.Length() == 0 {
			continue
		}

		raw := ""
		if p.selectors.PriceAttr != "" {
			raw, _ = node.Attr(p.selectors.PriceAttr)
		}
		if raw == "" {
			raw = node.Text()
		}

		price, ok := textutil.ParsePrice(raw)
		if !ok || price <= 0 {
			continue
		}

		currency := p.cfg.Currency
		if p.selectors.CurrencyAttr != "" {
			if v, exists := node.Attr(p.selectors.CurrencyAttr); exists && strings.TrimSpace(v) != "" {
				currency = strings.ToUpper(strings.TrimSpace(v))
			}
		}
		return price, currency, true
	}
	return 0, "", false
}

func (p *ProductCard) resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		node := card.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(card *goquery.Selection, selectors, attrs []string) string {
	for _, selector := range selectors {
		node := card.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		for _, attr := range attrs {
			if value, exists := node.Attr(attr); exists && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func attrOf(card *goquery.Selection, attr string) string {
	if attr == "" {
		return ""
	}
	value, _ := card.Attr(attr)
	return value
}

func parseShipping(text string) *float64 {
	fee, ok := textutil.ParseShippingFee(text)
	if !ok {
		return nil
	}
	return &fee
}
