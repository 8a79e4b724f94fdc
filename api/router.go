// Package api exposes the aggregation pipeline over HTTP: the search and
// catalog endpoints, health, Prometheus metrics and the API reference UI.
package api

import (
	"fmt"
	"net/http"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions configures the HTTP router.
type RouterOptions struct {
	Version     string
	SpecDir     string
	DisableDocs bool
}

// NewRouter builds the chi router with the full middleware stack.
func NewRouter(searcher Searcher, opts RouterOptions, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SpecDir == "" {
		opts.SpecDir = "./"
	}

	h := &handlers{searcher: searcher, version: opts.Version, logger: logger}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware(logger))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.handleSearch)
		r.Get("/products", h.handleProducts)
		r.Get("/health", h.handleHealth)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	if !opts.DisableDocs {
		r.Get("/", docsHandler(opts.SpecDir, logger))
	}
	r.NotFound(h.handleNotFound)

	return r
}

// docsHandler serves the Scalar API reference built from the OpenAPI spec.
func docsHandler(specDir string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := scalargo.NewV2(
			scalargo.WithSpecDir(specDir),
			scalargo.WithMetaDataOpts(
				scalargo.WithTitle("Atlas Taman API"),
			),
		)
		if err != nil {
			logger.Error("failed to render api docs", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "docs unavailable"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
