// Package integrations contains one integration per merchant. Card-based
// merchants share a configurable HTML extractor; API-backed merchants
// implement the same interface over JSON.
package integrations

import (
	"context"

	"atlas-taman/models"
)

// MerchantIntegration is one searchable merchant source. Search returns the
// offers matching a query, or an error when the merchant could not be
// reached or refused to answer. An empty result is not an error.
type MerchantIntegration interface {
	ID() string
	Label() string
	Profile() models.MerchantProfile
	Search(ctx context.Context, query string) ([]models.MerchantOffer, error)
}
