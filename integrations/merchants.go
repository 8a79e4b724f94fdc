package integrations

import (
	"time"

	"go.uber.org/zap"

	"atlas-taman/config"
	"atlas-taman/fetcher"
	"atlas-taman/models"
)

// cardMerchant bundles the static knowledge about one card-based merchant:
// its identity, its search defaults and where the fields live in its markup.
type cardMerchant struct {
	profile   models.MerchantProfile
	defaults  config.Merchant
	selectors CardSelectors
}

// cardMerchants is the built-in roster, in registration order. Aggregation
// results keep this order for metrics and error reporting.
var cardMerchants = []cardMerchant{
	{
		profile: models.MerchantProfile{
			ID:      "electroplanet",
			Name:    "Electroplanet",
			URL:     "https://www.electroplanet.ma",
			LogoURL: "https://www.electroplanet.ma/static/version/frontend/images/logo.svg",
			City:    "Casablanca",
		},
		defaults: config.Merchant{
			SearchURL:  "https://www.electroplanet.ma/catalogsearch/result/",
			QueryParam: "q",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     "li.product-item",
			ProductIDAttr: "data-product-id",
			Title:         []string{"a.product-item-link", ".product-item-name"},
			Link:          []string{"a.product-item-link", "a.product-item-photo"},
			Price:         []string{".price-box .price", ".special-price .price", ".price"},
			CurrencyAttr:  "data-price-currency",
			Brand:         []string{".product-brand", ".brand"},
			Category:      []string{".product-category"},
			Image:         []string{".product-image-photo", "img"},
			Shipping:      []string{".shipping", ".delivery-info"},
			Availability:  []string{".stock", ".availability"},
		},
	},
	{
		profile: models.MerchantProfile{
			ID:      "jumia",
			Name:    "Jumia",
			URL:     "https://www.jumia.ma",
			LogoURL: "https://www.jumia.ma/assets_he/images/logo.png",
			City:    "Casablanca",
		},
		defaults: config.Merchant{
			SearchURL:  "https://www.jumia.ma/catalog/",
			QueryParam: "q",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     "article.prd",
			ProductIDAttr: "data-id",
			Title:         []string{"h3.name", ".name"},
			Link:          []string{"a.core", "a"},
			Price:         []string{"div.prc", ".prc"},
			Brand:         []string{".brand"},
			Category:      []string{".cat"},
			Image:         []string{"img.img", "img"},
			Shipping:      []string{".shipping", ".ship"},
			Availability:  []string{".stk", ".stock"},
		},
	},
	{
		profile: models.MerchantProfile{
			ID:      "marjane",
			Name:    "Marjane",
			URL:     "https://www.marjane.ma",
			LogoURL: "https://www.marjane.ma/images/marjane-logo.png",
			City:    "Rabat",
		},
		defaults: config.Merchant{
			SearchURL:  "https://www.marjane.ma/search",
			QueryParam: "text",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     ".product-card",
			ProductIDAttr: "data-sku",
			Title:         []string{".product-card__title", ".product-card__name"},
			Link:          []string{"a.product-card__link", "a"},
			Price:         []string{".product-card__price--current", ".product-card__price"},
			Brand:         []string{".product-card__brand"},
			Category:      []string{".product-card__category"},
			Image:         []string{".product-card__image img", "img"},
			Shipping:      []string{".product-card__shipping"},
			Availability:  []string{".product-card__availability"},
		},
	},
	{
		profile: models.MerchantProfile{
			ID:      "bim",
			Name:    "BIM",
			URL:     "https://www.bim.ma",
			LogoURL: "https://www.bim.ma/images/bim-logo.png",
			City:    "Casablanca",
		},
		defaults: config.Merchant{
			SearchURL:  "https://www.bim.ma/recherche",
			QueryParam: "s",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     ".product-box",
			ProductIDAttr: "data-product",
			Title:         []string{".product-box .title", ".product-title"},
			Link:          []string{"a.product-link", "a"},
			Price:         []string{".product-price", ".price"},
			Brand:         []string{".product-brand"},
			Category:      []string{".product-category"},
			Image:         []string{".product-box img", "img"},
			Shipping:      []string{".product-shipping"},
			Availability:  []string{".product-stock"},
		},
	},
	{
		profile: models.MerchantProfile{
			ID:      "decathlon",
			Name:    "Decathlon Maroc",
			URL:     "https://www.decathlon.ma",
			LogoURL: "https://www.decathlon.ma/static/img/logo.svg",
			City:    "Casablanca",
		},
		defaults: config.Merchant{
			SearchURL:  "https://www.decathlon.ma/search",
			QueryParam: "Ntt",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     ".product-block",
			ProductIDAttr: "data-item-id",
			Title:         []string{".product-block__title", ".product-name"},
			Link:          []string{"a.product-block__link", "a"},
			Price:         []string{".product-block__price .price", ".price"},
			Brand:         []string{".product-block__brand"},
			Category:      []string{".product-block__sport"},
			Image:         []string{".product-block__image img", "img"},
			Shipping:      []string{".product-block__delivery"},
			Availability:  []string{".product-block__stock"},
		},
	},
	{
		profile: models.MerchantProfile{
			ID:      "hm",
			Name:    "H&M Maroc",
			URL:     "https://ma.hm.com",
			LogoURL: "https://ma.hm.com/static/logo.svg",
			City:    "Casablanca",
		},
		defaults: config.Merchant{
			SearchURL:  "https://ma.hm.com/search-results.html",
			QueryParam: "q",
			Currency:   "MAD",
			Timeout:    10 * time.Second,
		},
		selectors: CardSelectors{
			Container:     ".hm-product-item",
			ProductIDAttr: "data-articlecode",
			Title:         []string{".item-heading a", ".item-heading"},
			Link:          []string{".item-heading a", "a.item-link", "a"},
			Price:         []string{".item-price .price.sale", ".item-price .price", ".item-price"},
			Brand:         []string{".item-brand"},
			Category:      []string{".item-category"},
			Image:         []string{".image-container img", "img"},
			Shipping:      []string{".item-shipping"},
			Availability:  []string{".item-availability"},
		},
	},
}

// NewElectroplanet builds the Electroplanet integration with its defaults and
// any environment overrides applied.
func NewElectroplanet(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[0], nil, client, logger)
}

// NewJumia builds the Jumia integration.
func NewJumia(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[1], nil, client, logger)
}

// NewMarjane builds the Marjane integration.
func NewMarjane(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[2], nil, client, logger)
}

// NewBIM builds the BIM integration.
func NewBIM(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[3], nil, client, logger)
}

// NewDecathlon builds the Decathlon integration.
func NewDecathlon(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[4], nil, client, logger)
}

// NewHM builds the H&M integration.
func NewHM(client *fetcher.Client, logger *zap.Logger) *ProductCard {
	return newCard(cardMerchants[5], nil, client, logger)
}

func newCard(m cardMerchant, overrides map[string]config.MerchantOverride, client *fetcher.Client, logger *zap.Logger) *ProductCard {
	profile := m.profile
	defaults := m.defaults

	if override, ok := overrides[m.profile.ID]; ok {
		if override.Name != "" {
			profile.Name = override.Name
		}
		if override.URL != "" {
			profile.URL = override.URL
		}
		if override.LogoURL != "" {
			profile.LogoURL = override.LogoURL
		}
		if override.City != "" {
			profile.City = override.City
		}
		if override.SearchURL != "" {
			defaults.SearchURL = override.SearchURL
		}
		if override.QueryParam != "" {
			defaults.QueryParam = override.QueryParam
		}
		if override.Currency != "" {
			defaults.Currency = override.Currency
		}
	}

	return NewProductCard(profile, config.ResolveMerchant(m.profile.ID, defaults), m.selectors, client, logger)
}
