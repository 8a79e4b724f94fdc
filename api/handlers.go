package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"atlas-taman/models"
)

// Searcher is the aggregation surface the handlers depend on.
type Searcher interface {
	Search(ctx context.Context, query string) (*models.AggregationResponse, error)
	ListProducts(ctx context.Context) (*models.AggregationResponse, error)
}

// pagination reports the result set size.
type pagination struct {
	Total int `json:"total"`
}

// envelope is the response shape of every product endpoint.
type envelope struct {
	Success    bool                        `json:"success"`
	Results    []models.AggregatedProduct  `json:"results"`
	Pagination pagination                  `json:"pagination"`
	Errors     []models.IntegrationError   `json:"errors"`
	Metadata   *models.AggregationMetadata `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type handlers struct {
	searcher Searcher
	version  string
	logger   *zap.Logger
}

// handleSearch answers GET /api/search?q=...&sort=...
func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	response, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "search failed"})
		return
	}

	h.writeProducts(w, r, response)
}

// handleProducts answers GET /api/products, the full catalog.
func (h *handlers) handleProducts(w http.ResponseWriter, r *http.Request) {
	response, err := h.searcher.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("product listing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "product listing failed"})
		return
	}

	h.writeProducts(w, r, response)
}

func (h *handlers) writeProducts(w http.ResponseWriter, r *http.Request, response *models.AggregationResponse) {
	products := sortProducts(response.Products, r.URL.Query().Get("sort"))

	errors := response.Errors
	if errors == nil {
		errors = []models.IntegrationError{}
	}

	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Results:    products,
		Pagination: pagination{Total: len(products)},
		Errors:     errors,
		Metadata:   &response.Metadata,
	})
}

// handleHealth answers GET /api/health.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorEnvelope{Error: "not found"})
}

// sortProducts applies a sort directive on a copy of the product list. The
// aggregation order (cheapest total first) is the "relevance" default.
func sortProducts(products []models.AggregatedProduct, directive string) []models.AggregatedProduct {
	sorted := append([]models.AggregatedProduct(nil), products...)
	if sorted == nil {
		sorted = []models.AggregatedProduct{}
	}

	switch directive {
	case "price_asc":
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinTotalPrice < sorted[j].MinTotalPrice })
	case "price_desc":
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinTotalPrice > sorted[j].MinTotalPrice })
	case "name":
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	}
	return sorted
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
