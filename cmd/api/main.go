package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	server "hotel_pricing/internal/adapters/http_server"
	"hotel_pricing/internal/adapters/observability"
	redisad "hotel_pricing/internal/adapters/redis"
	"hotel_pricing/internal/app"
	"hotel_pricing/internal/domain"
	"hotel_pricing/internal/shared"
	"hotel_pricing/internal/storage/memory"
	mysqlrepo "hotel_pricing/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	mode, err := app.ParsePropagationMode(cfg.PropagationMode)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PROPAGATION_MODE")
	}

	// store
	var store domain.Store
	switch cfg.StoreDriver {
	case "memory":
		store = memory.New()
		log.Warn().Msg("using in-memory store")
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		store = mysqlrepo.New(db)
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER")
	}

	// cache is optional: without redis every read goes to the store
	var cache domain.Cache
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, caching disabled")
		_ = rc.Close()
	} else {
		defer rc.Close()
		cache = rc
	}

	h := &server.Handlers{
		Q: app.NewQueryService(store, cache, cfg.CacheTTL),
		C: app.NewCommandService(store, cache),
		P: app.NewPricingService(store, cache, mode),
	}
	if cfg.PriceUpdateRPS > 0 {
		h.PriceLimiter = rate.NewLimiter(rate.Limit(cfg.PriceUpdateRPS), cfg.PriceUpdateRPS)
	}

	// metrics
	reg := observability.InitRegistry()
	if cfg.MetricsAddr != "" {
		observability.Serve(cfg.MetricsAddr, reg)
	}

	// http
	srv := server.New(cfg.RequestTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("mode", string(mode)).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
