// Atlas Taman aggregates product offers from Moroccan e-commerce merchants
// and serves price comparisons over HTTP. With -query it runs a single
// search from the command line instead of starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"atlas-taman/aggregator"
	"atlas-taman/api"
	"atlas-taman/cloudflare"
	"atlas-taman/config"
	"atlas-taman/fetcher"
	"atlas-taman/integrations"
	"atlas-taman/models"
)

func main() {
	port := flag.String("port", "", "listen port (overrides SERVER_PORT)")
	merchantsFile := flag.String("merchants", "", "optional merchants YAML overrides file")
	query := flag.String("query", "", "run a single search and print the results instead of serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.ServerPort = *port
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	overrides, err := config.LoadMerchantOverrides(*merchantsFile)
	if err != nil {
		logger.Fatal("failed to load merchant overrides", zap.Error(err))
	}

	resolver := cloudflare.NewResolver(cloudflare.ConfigFromEnv(), logger)
	client := fetcher.New(resolver, logger)

	roster, err := integrations.DefaultIntegrations(integrations.Deps{
		Fetcher:   client,
		Logger:    logger,
		Overrides: overrides,
	})
	if err != nil {
		logger.Fatal("failed to build integrations", zap.Error(err))
	}
	logger.Info("integrations ready", zap.Int("count", len(roster)))

	agg := aggregator.New(roster, aggregator.Options{
		CacheTTL:       cfg.CacheTTL,
		CacheSize:      cfg.CacheSize,
		RateLimit:      cfg.RateLimit,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger)

	if *query != "" {
		runQuery(agg, *query, logger)
		return
	}

	serve(agg, cfg, logger)
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parsed)
	return zapCfg.Build()
}

// runQuery executes one search and prints a console summary per product.
func runQuery(agg *aggregator.Aggregator, query string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	response, err := agg.Search(ctx, query)
	if err != nil {
		logger.Fatal("search failed", zap.Error(err))
	}

	fmt.Printf("%d products for %q (%d ms)\n", len(response.Products), query, response.Metadata.TookMs)
	for _, product := range response.Products {
		fmt.Printf("\n%s  [%s]\n", product.Name, product.Category)
		for _, offer := range product.Offers {
			fmt.Printf("  %-20s %10.2f %s", offer.Merchant.Name, offer.TotalPrice, offer.Currency)
			if offer.ShippingFee != nil {
				fmt.Printf("  (dont livraison %.2f)", *offer.ShippingFee)
			}
			if !offer.IsAvailable {
				fmt.Print("  [indisponible]")
			}
			fmt.Printf("  %s\n", offer.URL)
		}
	}
	for _, failure := range response.Errors {
		fmt.Printf("\n! %s: %s\n", failure.MerchantName, failure.Message)
	}

	printMetrics(response.Metadata.Integrations)
}

func printMetrics(runs []models.IntegrationMetric) {
	fmt.Println("\nmerchants:")
	for _, run := range runs {
		fmt.Printf("  %-16s %-9s %4d offers  %5d ms\n", run.ID, run.Status, run.Offers, run.DurationMs)
	}
}

func serve(agg *aggregator.Aggregator, cfg *config.Config, logger *zap.Logger) {
	router := api.NewRouter(agg, api.RouterOptions{
		Version:     cfg.AppVersion,
		DisableDocs: !cfg.DocsEnabled,
	}, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Address()),
			zap.String("version", cfg.AppVersion))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
