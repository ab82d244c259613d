package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv          string
	LogLevel        string
	HTTPAddr        string
	MetricsAddr     string
	StoreDriver     string // mysql|memory
	MySQLDSN        string
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	CacheTTL        time.Duration
	PropagationMode string // best_effort|atomic
	RequestTimeout  time.Duration
	PriceUpdateRPS  int

	// repricer
	PricingAPIURL  string
	PricingAPIKey  string
	RepriceWorkers int
	RepriceRPS     int
	RepriceSheet   string
}

// Load reads the environment, after an optional .env file in the working directory.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		LogLevel:        env("LOG_LEVEL", "info"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ""),
		StoreDriver:     env("STORE_DRIVER", "mysql"),
		MySQLDSN:        env("MYSQL_DSN", "root:root@tcp(localhost:3306)/hotel?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:       env("REDIS_ADDR", "localhost:6379"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		PropagationMode: env("PROPAGATION_MODE", "best_effort"),
		RequestTimeout:  time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		PriceUpdateRPS:  atoi("PRICE_UPDATE_RPS", 20),
		PricingAPIURL:   env("PRICING_API_URL", "http://localhost:8080"),
		PricingAPIKey:   env("PRICING_API_KEY", ""),
		RepriceWorkers:  atoi("REPRICE_WORKERS", 4),
		RepriceRPS:      atoi("REPRICE_RPS", 10),
		RepriceSheet:    env("REPRICE_SHEET", "prices.csv"),
	}
	if c.StoreDriver == "memory" && c.AppEnv != "dev" && c.AppEnv != "development" {
		log.Warn().Str("app_env", c.AppEnv).Msg("memory store outside dev: data is lost on restart")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}
