package integrations

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"atlas-taman/config"
	"atlas-taman/fetcher"
)

// Deps carries the shared dependencies every integration receives.
type Deps struct {
	Fetcher   *fetcher.Client
	Logger    *zap.Logger
	Overrides map[string]config.MerchantOverride
}

// DefaultIntegrations builds the full merchant roster in registration order.
// The generic product-search API integration is appended when configured.
// A merchant with an unparseable search URL is a configuration error and
// aborts startup.
func DefaultIntegrations(deps Deps) ([]MerchantIntegration, error) {
	integrations := make([]MerchantIntegration, 0, len(cardMerchants)+1)

	for _, m := range cardMerchants {
		card := newCard(m, deps.Overrides, deps.Fetcher, deps.Logger)
		if err := validateSearchURL(card.cfg.SearchURL); err != nil {
			return nil, fmt.Errorf("merchant %s: %w", m.profile.ID, err)
		}
		integrations = append(integrations, card)
	}

	if cfg := config.ResolveGoogleProducts(); cfg != nil {
		gp, err := NewGoogleProducts(*cfg, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("google products: %w", err)
		}
		integrations = append(integrations, gp)
	}

	return integrations, nil
}

func validateSearchURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid search URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("search URL %q must be absolute", raw)
	}
	return nil
}
