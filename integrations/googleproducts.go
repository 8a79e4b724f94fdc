package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"atlas-taman/config"
	"atlas-taman/metrics"
	"atlas-taman/models"
	"atlas-taman/textutil"
)

const (
	googleProductsID    = "google-products"
	googleProductsLabel = "Google Products"
)

// GoogleProducts queries a JSON product-search API instead of scraping HTML.
// The upstream payload shape varies by provider, so item fields accept
// several spellings and price fields accept numbers, strings and objects.
type GoogleProducts struct {
	cfg        config.GoogleProducts
	profile    models.MerchantProfile
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGoogleProducts builds the API integration from a resolved configuration.
func NewGoogleProducts(cfg config.GoogleProducts, logger *zap.Logger) (*GoogleProducts, error) {
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", cfg.APIURL, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleProducts{
		cfg: cfg,
		profile: models.MerchantProfile{
			ID:   googleProductsID,
			Name: googleProductsLabel,
			URL:  cfg.MerchantURL,
		},
		httpClient: &http.Client{},
		logger:     logger.With(zap.String("merchant", googleProductsID)),
	}, nil
}

func (g *GoogleProducts) ID() string                      { return googleProductsID }
func (g *GoogleProducts) Label() string                   { return googleProductsLabel }
func (g *GoogleProducts) Profile() models.MerchantProfile { return g.profile }

// Search queries the product API. Queries without any alphanumeric content
// are skipped without a network call.
func (g *GoogleProducts) Search(ctx context.Context, query string) ([]models.MerchantOffer, error) {
	if !hasAlphanumeric(query) {
		return nil, nil
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	req, err := g.buildRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, fmt.Errorf("product API timed out after %s", g.cfg.Timeout)
		}
		return nil, fmt.Errorf("product API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read product API response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("product API responded with HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	items, err := decodeItems(body)
	if err != nil {
		return nil, err
	}

	offers := g.toOffers(items)
	metrics.MerchantOffers.WithLabelValues(googleProductsID).Add(float64(len(offers)))
	return offers, nil
}

func (g *GoogleProducts) buildRequest(ctx context.Context, query string) (*http.Request, error) {
	u, err := url.Parse(g.cfg.APIURL)
	if err != nil {
		return nil, err
	}

	values := u.Query()
	values.Set("q", strings.TrimSpace(query))
	if g.cfg.APIKeyHeaderName == "" {
		values.Set(g.cfg.APIKeyQueryParam, g.cfg.APIKey)
	}
	if g.cfg.SearchEngineID != "" {
		values.Set("cx", g.cfg.SearchEngineID)
	}
	if g.cfg.Country != "" {
		values.Set("gl", g.cfg.Country)
	}
	if g.cfg.Language != "" {
		values.Set("hl", g.cfg.Language)
	}
	if g.cfg.ResultsLimit > 0 {
		values.Set("num", fmt.Sprintf("%d", g.cfg.ResultsLimit))
	}
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if g.cfg.APIKeyHeaderName != "" {
		req.Header.Set(g.cfg.APIKeyHeaderName, g.cfg.APIKey)
	}
	return req, nil
}

// productItem tolerates the field spellings seen across providers.
type productItem struct {
	ID           json.RawMessage `json:"id"`
	ProductID    json.RawMessage `json:"productId"`
	Title        string          `json:"title"`
	Name         string          `json:"name"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Image        string          `json:"image"`
	ImageURL     string          `json:"imageUrl"`
	Thumbnail    string          `json:"thumbnail"`
	Price        flexiblePrice   `json:"price"`
	Shipping     flexiblePrice   `json:"shipping"`
	ShippingFee  flexiblePrice   `json:"shippingFee"`
	Availability string          `json:"availability"`
	URL          string          `json:"url"`
	Link         string          `json:"link"`
	Merchant     *itemMerchant   `json:"merchant"`
	Seller       *itemMerchant   `json:"seller"`
}

type itemMerchant struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	LogoURL string `json:"logoUrl"`
}

// flexiblePrice accepts a JSON number, a numeric string with currency noise,
// or an object {"value": ..., "currency": ...}.
type flexiblePrice struct {
	Value    float64
	Currency string
	Set      bool
}

func (p *flexiblePrice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		p.Value = number
		p.Set = true
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if value, ok := textutil.ParsePrice(text); ok {
			p.Value = value
			p.Set = true
		}
		return nil
	}

	var object struct {
		Value    json.RawMessage `json:"value"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &object); err == nil && len(object.Value) > 0 {
		var inner flexiblePrice
		if err := inner.UnmarshalJSON(object.Value); err == nil && inner.Set {
			p.Value = inner.Value
			p.Currency = strings.ToUpper(strings.TrimSpace(object.Currency))
			p.Set = true
		}
	}
	return nil
}

func decodeItems(body []byte) ([]productItem, error) {
	var items []productItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var envelope struct {
		Items    []productItem `json:"items"`
		Products []productItem `json:"products"`
		Results  []productItem `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected product API payload: %w", err)
	}

	switch {
	case len(envelope.Items) > 0:
		return envelope.Items, nil
	case len(envelope.Products) > 0:
		return envelope.Products, nil
	default:
		return envelope.Results, nil
	}
}

func (g *GoogleProducts) toOffers(items []productItem) []models.MerchantOffer {
	now := time.Now().UTC()
	offers := make([]models.MerchantOffer, 0, len(items))

	for _, item := range items {
		title := strings.TrimSpace(firstNonEmpty(item.Title, item.Name))
		if title == "" || !item.Price.Set || item.Price.Value <= 0 {
			continue
		}

		slug := textutil.Slugify(title)
		productID := rawString(item.ID)
		if productID == "" {
			productID = rawString(item.ProductID)
		}
		if productID == "" {
			productID = slug
		}
		if productID == "" {
			continue
		}

		currency := item.Price.Currency
		if currency == "" {
			currency = g.cfg.DefaultCurrency
		}

		var shippingFee *float64
		for _, shipping := range []flexiblePrice{item.ShippingFee, item.Shipping} {
			if shipping.Set {
				fee := shipping.Value
				shippingFee = &fee
				break
			}
		}

		offers = append(offers, models.MerchantOffer{
			OfferID:      googleProductsID + "-" + productID,
			Merchant:     g.itemProfile(item),
			ProductID:    productID,
			Slug:         slug,
			Title:        title,
			Brand:        strings.TrimSpace(item.Brand),
			Category:     strings.TrimSpace(item.Category),
			Image:        firstNonEmpty(item.Image, item.ImageURL, item.Thumbnail),
			Price:        item.Price.Value,
			Currency:     currency,
			ShippingFee:  shippingFee,
			Availability: textutil.ParseAvailability(item.Availability),
			URL:          firstNonEmpty(item.URL, item.Link, g.profile.URL),
			ScrapedAt:    now,
		})
	}

	sort.SliceStable(offers, func(i, j int) bool {
		ti, tj := offers[i].TotalPrice(), offers[j].TotalPrice()
		if ti != tj {
			return ti < tj
		}
		return offers[i].Title < offers[j].Title
	})

	if g.cfg.ResultsLimit > 0 && len(offers) > g.cfg.ResultsLimit {
		offers = offers[:g.cfg.ResultsLimit]
	}
	return offers
}

// itemProfile prefers the merchant metadata embedded in the item so offers
// relayed through the API keep their real seller identity.
func (g *GoogleProducts) itemProfile(item productItem) models.MerchantProfile {
	meta := item.Merchant
	if meta == nil {
		meta = item.Seller
	}
	if meta == nil || strings.TrimSpace(meta.Name) == "" {
		return g.profile
	}
	name := strings.TrimSpace(meta.Name)
	id := textutil.Slugify(name)
	if id == "" {
		id = googleProductsID
	}
	return models.MerchantProfile{
		ID:      id,
		Name:    name,
		URL:     firstNonEmpty(meta.URL, g.profile.URL),
		LogoURL: meta.LogoURL,
	}
}

// rawString reads a JSON scalar that may be a string or a number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
