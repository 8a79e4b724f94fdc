package models

import "time"

// Availability describes whether a merchant currently sells an offer.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// MerchantProfile identifies a merchant. Profiles are built once at startup
// from static configuration and never mutated afterwards.
type MerchantProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	LogoURL string `json:"logoUrl,omitempty"`
	City    string `json:"city,omitempty"`
}

// MerchantOffer is one scraped listing, created fresh on every extraction
// call and discarded after aggregation.
type MerchantOffer struct {
	OfferID      string          `json:"offerId"`
	Merchant     MerchantProfile `json:"merchant"`
	ProductID    string          `json:"productId"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Brand        string          `json:"brand,omitempty"`
	Category     string          `json:"category,omitempty"`
	Image        string          `json:"image,omitempty"`
	Price        float64         `json:"price"`
	Currency     string          `json:"currency"`
	ShippingFee  *float64        `json:"shippingFee,omitempty"`
	Availability Availability    `json:"availability"`
	URL          string          `json:"url"`
	ScrapedAt    time.Time       `json:"scrapedAt"`
}

// TotalPrice is the offer price plus shipping fee when one is known.
func (o MerchantOffer) TotalPrice() float64 {
	if o.ShippingFee != nil {
		return o.Price + *o.ShippingFee
	}
	return o.Price
}

// AggregatedOffer is a MerchantOffer re-shaped for external consumption.
type AggregatedOffer struct {
	ID          string          `json:"id"`
	Price       float64         `json:"price"`
	TotalPrice  float64         `json:"totalPrice"`
	Currency    string          `json:"currency"`
	ShippingFee *float64        `json:"shippingFee"`
	IsAvailable bool            `json:"isAvailable"`
	URL         string          `json:"url"`
	Merchant    MerchantProfile `json:"merchant"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AggregatedProduct is a cluster of offers sharing a grouping slug.
// Offers are sorted ascending by total price and never empty.
type AggregatedProduct struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	Brand          string            `json:"brand,omitempty"`
	Category       string            `json:"category"`
	CategorySlug   string            `json:"categorySlug"`
	Images         []string          `json:"images"`
	MinPrice       float64           `json:"minPrice"`
	MaxPrice       float64           `json:"maxPrice"`
	MinTotalPrice  float64           `json:"minTotalPrice"`
	OffersCount    int               `json:"offersCount"`
	Offers         []AggregatedOffer `json:"offers"`
	Specifications map[string]string `json:"specifications"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// IntegrationMetric records one merchant's execution during an aggregation run.
type IntegrationMetric struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	DurationMs int64  `json:"durationMs"`
	Offers     int    `json:"offers"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

const (
	StatusFulfilled = "fulfilled"
	StatusRejected  = "rejected"
)

// IntegrationError is the user-facing record of a failed merchant.
type IntegrationError struct {
	MerchantID   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`
	Message      string `json:"message"`
}

// AggregationMetadata describes how a response was produced.
type AggregationMetadata struct {
	Query        string              `json:"query"`
	FromCache    bool                `json:"fromCache"`
	TookMs       int64               `json:"tookMs"`
	GeneratedAt  time.Time           `json:"generatedAt"`
	Integrations []IntegrationMetric `json:"integrations"`
}

// AggregationResponse is the top-level aggregation result and the cache value.
type AggregationResponse struct {
	Products []AggregatedProduct `json:"products"`
	Errors   []IntegrationError  `json:"errors"`
	Metadata AggregationMetadata `json:"metadata"`
}

func cloneFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Clone returns a deep copy of the offer.
func (o AggregatedOffer) Clone() AggregatedOffer {
	c := o
	c.ShippingFee = cloneFloatPtr(o.ShippingFee)
	return c
}

// Clone returns a deep copy of the product, including offers, images and
// specifications.
func (p AggregatedProduct) Clone() AggregatedProduct {
	c := p
	c.Images = append([]string(nil), p.Images...)
	c.Offers = make([]AggregatedOffer, len(p.Offers))
	for i, offer := range p.Offers {
		c.Offers[i] = offer.Clone()
	}
	c.Specifications = make(map[string]string, len(p.Specifications))
	for k, v := range p.Specifications {
		c.Specifications[k] = v
	}
	return c
}

// Clone returns a deep copy of the response. Cache entries are cloned on both
// write and read so one caller's mutations can never reach another caller or
// the cached value itself.
func (r *AggregationResponse) Clone() *AggregationResponse {
	if r == nil {
		return nil
	}
	c := &AggregationResponse{
		Products: make([]AggregatedProduct, len(r.Products)),
		Errors:   append([]IntegrationError(nil), r.Errors...),
		Metadata: r.Metadata,
	}
	for i, p := range r.Products {
		c.Products[i] = p.Clone()
	}
	c.Metadata.Integrations = append([]IntegrationMetric(nil), r.Metadata.Integrations...)
	return c
}
