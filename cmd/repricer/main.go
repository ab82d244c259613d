package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"hotel_pricing/internal/adapters/observability"
	"hotel_pricing/internal/adapters/pricingapi"
	"hotel_pricing/internal/app"
	"hotel_pricing/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	sheet := cfg.RepriceSheet
	if len(os.Args) > 1 {
		sheet = os.Args[1]
	}
	log.Info().
		Str("api", cfg.PricingAPIURL).
		Str("sheet", sheet).
		Int("workers", cfg.RepriceWorkers).
		Int("rps", cfg.RepriceRPS).
		Msg("repricer starting")

	f, err := os.Open(sheet)
	if err != nil {
		log.Fatal().Err(err).Msg("open price sheet failed")
	}
	rows, err := app.ParsePriceSheet(f)
	_ = f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("parse price sheet failed")
	}

	client, err := pricingapi.New(cfg.PricingAPIURL, cfg.PricingAPIKey, cfg.RepriceRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pricing API client")
	}

	sum := app.NewRepricer(client, cfg.RepriceWorkers).Run(ctx, rows)
	if sum.Failed > 0 || sum.Partial > 0 {
		os.Exit(1)
	}
}
