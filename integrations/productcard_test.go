package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"atlas-taman/cloudflare"
	"atlas-taman/config"
	"atlas-taman/fetcher"
	"atlas-taman/models"
)

const electroplanetPage = `<!doctype html>
<html><body>
<ol class="products list">
  <li class="product-item" data-product-id="EP-1001">
    <a class="product-item-photo" href="/samsung-qe55q60d.html"><img class="product-image-photo" src="/media/q60d.jpg"></a>
    <a class="product-item-link" href="/samsung-qe55q60d.html">Samsung QE55Q60D TV QLED 55"</a>
    <div class="product-brand">Samsung</div>
    <div class="product-category">TV &amp; Image</div>
    <div class="price-box"><span class="price" data-price-currency="MAD">7 999,00 DH</span></div>
    <div class="shipping">Livraison: 49 DH</div>
    <div class="stock">En stock</div>
  </li>
  <li class="product-item" data-product-id="EP-1002">
    <a class="product-item-link" href="https://www.electroplanet.ma/lg-oled55.html">LG OLED55B4</a>
    <div class="price-box"><span class="price">12 499,00 DH</span></div>
    <div class="shipping">Livraison gratuite</div>
    <div class="stock">Rupture de stock</div>
  </li>
  <li class="product-item" data-product-id="EP-1003">
    <a class="product-item-link" href="/no-price.html">Produit sans prix</a>
  </li>
  <li class="product-item">
    <div class="price-box"><span class="price">199 DH</span></div>
  </li>
</ol>
</body></html>`

func testCard(t *testing.T, searchURL string, client *fetcher.Client) *ProductCard {
	t.Helper()
	return NewProductCard(
		models.MerchantProfile{ID: "electroplanet", Name: "Electroplanet", URL: "https://www.electroplanet.ma"},
		config.Merchant{SearchURL: searchURL, QueryParam: "q", Currency: "MAD"},
		cardMerchants[0].selectors,
		client,
		nil,
	)
}

func TestProductCardSearchExtractsOffers(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(electroplanetPage))
	}))
	defer server.Close()

	card := testCard(t, server.URL+"/catalogsearch/result/", fetcher.New(nil, nil))
	offers, err := card.Search(context.Background(), "tv samsung")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "tv samsung" {
		t.Errorf("query param = %q", gotQuery)
	}
	if len(offers) != 2 {
		t.Fatalf("offers = %d, want 2 (cards without title or price are dropped)", len(offers))
	}

	first := offers[0]
	if first.OfferID != "electroplanet-EP-1001" {
		t.Errorf("OfferID = %q", first.OfferID)
	}
	if first.Title != `Samsung QE55Q60D TV QLED 55"` {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Price != 7999 {
		t.Errorf("Price = %v", first.Price)
	}
	if first.Currency != "MAD" {
		t.Errorf("Currency = %q", first.Currency)
	}
	if first.Brand != "Samsung" {
		t.Errorf("Brand = %q", first.Brand)
	}
	if first.ShippingFee == nil || *first.ShippingFee != 49 {
		t.Errorf("ShippingFee = %v", first.ShippingFee)
	}
	if first.Availability != models.AvailabilityInStock {
		t.Errorf("Availability = %q", first.Availability)
	}
	if first.URL != server.URL+"/samsung-qe55q60d.html" {
		t.Errorf("URL = %q, want resolved against page origin", first.URL)
	}
	if first.Image != server.URL+"/media/q60d.jpg" {
		t.Errorf("Image = %q", first.Image)
	}
	if first.Slug != "samsung-qe55q60d-tv-qled-55" {
		t.Errorf("Slug = %q", first.Slug)
	}

	second := offers[1]
	if second.ShippingFee == nil || *second.ShippingFee != 0 {
		t.Errorf("free shipping fee = %v, want 0", second.ShippingFee)
	}
	if second.Availability != models.AvailabilityOutOfStock {
		t.Errorf("Availability = %q", second.Availability)
	}
	if second.URL != "https://www.electroplanet.ma/lg-oled55.html" {
		t.Errorf("absolute URL = %q, want kept as-is", second.URL)
	}
}

func TestProductCardDropsCardWithoutProductID(t *testing.T) {
	page := `<html><body><ol>
  <li class="product-item" data-product-id="EP-2001">
    <a class="product-item-link" href="/avec-ref.html">Produit avec reference</a>
    <div class="price-box"><span class="price">499 DH</span></div>
  </li>
  <li class="product-item">
    <a class="product-item-link" href="/sans-ref.html">Produit sans reference</a>
    <div class="price-box"><span class="price">299 DH</span></div>
  </li>
</ol></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	card := testCard(t, server.URL+"/catalogsearch/result/", fetcher.New(nil, nil))
	offers, err := card.Search(context.Background(), "produit")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want the card without a product id dropped", len(offers))
	}
	if offers[0].ProductID != "EP-2001" {
		t.Errorf("ProductID = %q", offers[0].ProductID)
	}
}

func TestProductCardSearchEmptyQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty query")
	}))
	defer server.Close()

	card := testCard(t, server.URL, fetcher.New(nil, nil))
	offers, err := card.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if offers != nil {
		t.Errorf("offers = %v, want nil", offers)
	}
}

func TestProductCardStaticParamsKeepExistingValues(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{
			"cat":  r.URL.Query().Get("cat"),
			"sort": r.URL.Query().Get("sort"),
			"q":    r.URL.Query().Get("q"),
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	card := NewProductCard(
		models.MerchantProfile{ID: "electroplanet", Name: "Electroplanet", URL: "https://www.electroplanet.ma"},
		config.Merchant{
			SearchURL:    server.URL + "/search?cat=tv",
			QueryParam:   "q",
			Currency:     "MAD",
			StaticParams: map[string]string{"cat": "audio", "sort": "price"},
		},
		cardMerchants[0].selectors,
		fetcher.New(nil, nil),
		nil,
	)

	if _, err := card.Search(context.Background(), "lg"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got["cat"] != "tv" {
		t.Errorf("cat = %q, want the URL's own value kept", got["cat"])
	}
	if got["sort"] != "price" {
		t.Errorf("sort = %q, want static param applied", got["sort"])
	}
	if got["q"] != "lg" {
		t.Errorf("q = %q", got["q"])
	}
}

func TestProductCardBlockedWithSolverFallback(t *testing.T) {
	solverCalls := 0
	solver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		solverCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"html":` + jsonString(electroplanetPage) + `}`))
	}))
	defer solver.Close()

	merchant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>Checking your browser before accessing</html>"))
	}))
	defer merchant.Close()

	resolver := cloudflare.NewResolver(cloudflare.Config{SolverURL: solver.URL}, nil)
	card := testCard(t, merchant.URL+"/catalogsearch/result/", fetcher.New(resolver, nil))

	offers, err := card.Search(context.Background(), "tv")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if solverCalls != 1 {
		t.Errorf("solver calls = %d, want 1", solverCalls)
	}
	if len(offers) != 2 {
		t.Fatalf("offers = %d, want 2 from solver html", len(offers))
	}
	if offers[0].Title != `Samsung QE55Q60D TV QLED 55"` {
		t.Errorf("Title = %q", offers[0].Title)
	}
}

func TestProductCardBlockedWithoutFallback(t *testing.T) {
	merchant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer merchant.Close()

	card := testCard(t, merchant.URL, fetcher.New(nil, nil))
	_, err := card.Search(context.Background(), "tv")
	if err == nil {
		t.Fatal("expected an error for a blocked page without fallback")
	}

	var httpErr *fetcher.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *fetcher.HTTPError, got %T: %v", err, err)
	}
	if httpErr.MerchantID != "electroplanet" || httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("HTTPError = %+v", httpErr)
	}
}

func TestProductCardServerError(t *testing.T) {
	merchant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer merchant.Close()

	card := testCard(t, merchant.URL, fetcher.New(nil, nil))
	if _, err := card.Search(context.Background(), "tv"); err == nil {
		t.Fatal("expected an error for HTTP 500")
	}
}

func TestDefaultIntegrationsRoster(t *testing.T) {
	integrations, err := DefaultIntegrations(Deps{Fetcher: fetcher.New(nil, nil)})
	if err != nil {
		t.Fatalf("DefaultIntegrations: %v", err)
	}

	wantOrder := []string{"electroplanet", "jumia", "marjane", "bim", "decathlon", "hm"}
	if len(integrations) != len(wantOrder) {
		t.Fatalf("integrations = %d, want %d without the products API configured", len(integrations), len(wantOrder))
	}
	for i, id := range wantOrder {
		if integrations[i].ID() != id {
			t.Errorf("integrations[%d] = %q, want %q", i, integrations[i].ID(), id)
		}
	}
}

func TestDefaultIntegrationsIncludesGoogleProductsWhenConfigured(t *testing.T) {
	t.Setenv("GOOGLE_PRODUCTS_API_URL", "https://products.example.com/search")
	t.Setenv("GOOGLE_PRODUCTS_API_KEY", "secret")

	integrations, err := DefaultIntegrations(Deps{Fetcher: fetcher.New(nil, nil)})
	if err != nil {
		t.Fatalf("DefaultIntegrations: %v", err)
	}
	last := integrations[len(integrations)-1]
	if last.ID() != "google-products" {
		t.Errorf("last integration = %q, want google-products", last.ID())
	}
}

func TestDefaultIntegrationsRejectsBadSearchURL(t *testing.T) {
	t.Setenv("JUMIA_SEARCH_URL", "/relative/only")
	if _, err := DefaultIntegrations(Deps{Fetcher: fetcher.New(nil, nil)}); err == nil {
		t.Fatal("expected an error for a non-absolute search URL")
	}
}

func jsonString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
