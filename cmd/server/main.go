package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challenge-desk-go/internal/api"
	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/config"
	"challenge-desk-go/internal/database"
	"challenge-desk-go/internal/logger"
	"challenge-desk-go/internal/market"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	listings := cfg.Market.Symbols
	if cfg.Market.RegistryFile != "" {
		listings, err = market.LoadRegistry(cfg.Market.RegistryFile)
		if err != nil {
			log.Fatal("Failed to load symbol registry", zap.Error(err))
		}
	}
	registry := market.NewRegistry(listings)
	log.Info("Domestic registry loaded", zap.Strings("symbols", registry.Symbols()))

	synth := market.NewSynthesizer(registry, cfg.Market.Domestic.Market, cfg.Market.Domestic.Currency, time.Now().UnixNano())
	oracle := market.NewOracle(
		registry,
		market.NewDomesticSource(&cfg.Market.Domestic, registry, synth, log),
		market.NewYahooClient(&cfg.Market.International, log),
		synth,
		market.NewQuoteCache(cfg.Market.Domestic.CacheTTL, cfg.Market.MinRequestInterval),
		market.NewQuoteCache(cfg.Market.International.CacheTTL, cfg.Market.MinRequestInterval),
		log,
	)

	svc := challenge.NewService(database.NewRepository(db), oracle, cfg.Plans, log, nil)

	server := api.NewServer(cfg.Server.Port, oracle, svc, log)
	server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
