// Package config loads process configuration from the environment, the way
// AutoTraderConfig in the teacher repo is assembled from env vars, with
// godotenv loading a .env file in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. Per-tenant exchange credentials are
// resolved separately by the exchange composition root (§6: "per-tenant
// credentials override").
type Config struct {
	TradingEnabled    bool
	BinanceUseTestnet bool
	BybitUseTestnet   bool
	HTTPAddr          string
	SQLitePath        string
	AuditBoltPath     string
	ExchangeTimeout   time.Duration
	MarketDataTTL     time.Duration
	CandleCacheTTL    time.Duration
	// MarketDataStreamURL, if set, is a book-ticker websocket endpoint the
	// market cache subscribes to per tenant instead of relying solely on
	// polling BestBid/BestAsk on cache miss (C3, marketdata.Stream). Empty
	// disables the stream and falls back to pure polling.
	MarketDataStreamURL string
}

// Load reads a .env file if present (ignored if missing) then builds Config
// from the environment, applying the defaults spec.md §6 names.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		TradingEnabled:    boolEnv("TRADING_ENABLED", false),
		BinanceUseTestnet: boolEnv("BINANCE_USE_TESTNET", true),
		BybitUseTestnet:   boolEnv("BYBIT_USE_TESTNET", true),
		HTTPAddr:          strEnv("HTTP_ADDR", ":8080"),
		SQLitePath:        strEnv("SQLITE_PATH", "tradingcore.db"),
		AuditBoltPath:     strEnv("AUDIT_BOLT_PATH", "audit.bolt"),
		ExchangeTimeout:   durationEnv("EXCHANGE_TIMEOUT", 5*time.Second),
		MarketDataTTL:       durationEnv("MARKET_DATA_TTL", 5*time.Second),
		CandleCacheTTL:      durationEnv("CANDLE_CACHE_TTL", 30*time.Second),
		MarketDataStreamURL: strEnv("MARKET_DATA_STREAM_URL", ""),
	}
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func strEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
