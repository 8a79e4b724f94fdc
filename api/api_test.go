package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-taman/models"
)

type stubSearcher struct {
	response *models.AggregationResponse
	err      error
	lastQ    string
}

func (s *stubSearcher) Search(ctx context.Context, query string) (*models.AggregationResponse, error) {
	s.lastQ = query
	return s.response, s.err
}

func (s *stubSearcher) ListProducts(ctx context.Context) (*models.AggregationResponse, error) {
	return s.response, s.err
}

func sampleResponse() *models.AggregationResponse {
	return &models.AggregationResponse{
		Products: []models.AggregatedProduct{
			{ID: "iphone-15", Name: "iPhone 15", Slug: "iphone-15", MinTotalPrice: 9999, Images: []string{}, Specifications: map[string]string{}},
			{ID: "galaxy-s24", Name: "Galaxy S24", Slug: "galaxy-s24", MinTotalPrice: 12999, Images: []string{}, Specifications: map[string]string{}},
		},
		Errors:   []models.IntegrationError{},
		Metadata: models.AggregationMetadata{Query: "phone"},
	}
}

func doRequest(t *testing.T, searcher Searcher, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	router := NewRouter(searcher, RouterOptions{Version: "test"}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body envelope
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &stubSearcher{response: sampleResponse()}
	rec, body := doRequest(t, searcher, "/api/search?q=phone")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "phone", searcher.lastQ)
	assert.True(t, body.Success)
	assert.Len(t, body.Results, 2)
	assert.Equal(t, 2, body.Pagination.Total)
	assert.NotNil(t, body.Errors)
	require.NotNil(t, body.Metadata)
	assert.Equal(t, "phone", body.Metadata.Query)
}

func TestSearchEndpointSortDirectives(t *testing.T) {
	tests := []struct {
		sort  string
		first string
	}{
		{"", "iPhone 15"},
		{"relevance", "iPhone 15"},
		{"price_asc", "iPhone 15"},
		{"price_desc", "Galaxy S24"},
		{"name", "Galaxy S24"},
	}

	for _, tt := range tests {
		t.Run("sort="+tt.sort, func(t *testing.T) {
			searcher := &stubSearcher{response: sampleResponse()}
			_, body := doRequest(t, searcher, "/api/search?q=phone&sort="+tt.sort)
			require.Len(t, body.Results, 2)
			assert.Equal(t, tt.first, body.Results[0].Name)
		})
	}
}

func TestSearchEndpointDoesNotMutateResponse(t *testing.T) {
	response := sampleResponse()
	searcher := &stubSearcher{response: response}

	_, body := doRequest(t, searcher, "/api/search?q=phone&sort=price_desc")
	require.Equal(t, "Galaxy S24", body.Results[0].Name)

	// The searcher's response keeps the aggregation order.
	assert.Equal(t, "iPhone 15", response.Products[0].Name)
}

func TestSearchEndpointFailure(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("all merchants down")}
	rec, _ := doRequest(t, searcher, "/api/search?q=phone")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestProductsEndpoint(t *testing.T) {
	searcher := &stubSearcher{response: sampleResponse()}
	rec, body := doRequest(t, searcher, "/api/products")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Pagination.Total)
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(&stubSearcher{response: sampleResponse()}, RouterOptions{Version: "1.2.3"}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(&stubSearcher{response: sampleResponse()}, RouterOptions{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNotFoundIsJSON(t *testing.T) {
	router := NewRouter(&stubSearcher{response: sampleResponse()}, RouterOptions{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

func TestRecoveryMiddleware(t *testing.T) {
	router := NewRouter(&panickingSearcher{}, RouterOptions{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

type panickingSearcher struct{}

func (p *panickingSearcher) Search(ctx context.Context, query string) (*models.AggregationResponse, error) {
	panic("boom")
}

func (p *panickingSearcher) ListProducts(ctx context.Context) (*models.AggregationResponse, error) {
	panic("boom")
}
